package aws

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/iam"
	iamTypes "github.com/aws/aws-sdk-go-v2/service/iam/types"

	"github.com/layerguard/layerguard/internal/models"
)

// IAMClient simulates whether the caller's policies allow the actions
// a scan or publish will issue.
type IAMClient struct {
	client *iam.Client
}

// NewIAMClient creates an IAM client. IAM is a global service; the
// region only selects the endpoint.
func NewIAMClient(ctx context.Context, region string) (*IAMClient, error) {
	cfg, err := loadConfig(ctx, region)
	if err != nil {
		return nil, err
	}
	return &IAMClient{client: iam.NewFromConfig(cfg)}, nil
}

// SimulateActions evaluates each action against the principal's
// attached policies, following pagination.
func (c *IAMClient) SimulateActions(ctx context.Context, principalArn string, actions []string) ([]models.ActionDecision, error) {
	var decisions []models.ActionDecision
	var marker *string

	for {
		input := &iam.SimulatePrincipalPolicyInput{
			PolicySourceArn: aws.String(principalArn),
			ActionNames:     actions,
			Marker:          marker,
		}

		result, err := c.client.SimulatePrincipalPolicy(ctx, input)
		if err != nil {
			return nil, fmt.Errorf("error simulating policy for %s: %w", principalArn, err)
		}

		for _, eval := range result.EvaluationResults {
			decisions = append(decisions, models.ActionDecision{
				Action:   aws.ToString(eval.EvalActionName),
				Decision: string(eval.EvalDecision),
				Allowed:  eval.EvalDecision == iamTypes.PolicyEvaluationDecisionTypeAllowed,
			})
		}

		if !result.IsTruncated {
			break
		}
		marker = result.Marker
	}

	return decisions, nil
}
