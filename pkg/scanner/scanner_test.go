package scanner

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/layerguard/layerguard/internal/config"
	"github.com/layerguard/layerguard/internal/models"
)

const (
	defenderArn = "arn:aws:lambda:us-east-1:123456789012:layer:twistlock-defender:7"
	baseArn     = "arn:aws:lambda:us-east-1:123456789012:layer:base:1"
)

type updateCall struct {
	name   string
	layers []string
	env    map[string]string
}

type fakeFunctions struct {
	functions  []models.FunctionDetail
	listErr    error
	aliases    map[string][]models.Alias
	aliasErr   error
	versions   map[string]models.FunctionDetail // keyed name@qualifier
	updateErrs map[string]error

	updates     []updateCall
	aliasCalls  int
	detailCalls []string
}

func (f *fakeFunctions) ListFunctions(_ context.Context) ([]models.FunctionDetail, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.functions, nil
}

func (f *fakeFunctions) GetFunctionDetail(_ context.Context, name, qualifier string) (models.FunctionDetail, error) {
	key := name + "@" + qualifier
	f.detailCalls = append(f.detailCalls, key)
	detail, ok := f.versions[key]
	if !ok {
		return models.FunctionDetail{}, errors.New("version not found")
	}
	return detail, nil
}

func (f *fakeFunctions) UpdateFunctionConfiguration(_ context.Context, name string, layers []string, env map[string]string) error {
	f.updates = append(f.updates, updateCall{name: name, layers: layers, env: env})
	return f.updateErrs[name]
}

func (f *fakeFunctions) ListAliases(_ context.Context, name string) ([]models.Alias, error) {
	f.aliasCalls++
	if f.aliasErr != nil {
		return nil, f.aliasErr
	}
	return f.aliases[name], nil
}

type fakeAssessor struct {
	verdicts map[string]models.Verdict
	calls    []string
}

func (a *fakeAssessor) Assess(_ context.Context, f models.FunctionDetail) models.Verdict {
	a.calls = append(a.calls, f.Name)
	if v, ok := a.verdicts[f.Name]; ok {
		return v
	}
	return models.Verdict{Safe: true, Reason: "safe"}
}

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Regions = []string{"us-east-1"}
	cfg.Agent.LayerArns = map[string]string{"us-east-1": defenderArn}
	return cfg
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func plainFunction(name string) models.FunctionDetail {
	return models.FunctionDetail{
		Name:        name,
		Region:      "us-east-1",
		Runtime:     "python3.12",
		PackageType: "Zip",
		MemoryMB:    512,
		TimeoutSec:  60,
		Layers:      []string{baseArn},
		Env:         map[string]string{"STAGE": "prod"},
	}
}

func TestScanRegionAttach(t *testing.T) {
	cfg := testConfig()
	cfg.Apply = true

	functions := &fakeFunctions{functions: []models.FunctionDetail{plainFunction("orders-api")}}
	s := New(cfg, functions, &fakeAssessor{}, testLogger())

	results, summary, err := s.ScanRegion(context.Background(), "us-east-1")
	require.NoError(t, err)
	require.Len(t, results, 1)

	assert.Equal(t, models.OutcomeAttached, results[0].Outcome)
	assert.Equal(t, 1, summary.Attached)
	assert.Equal(t, 1, summary.Total)

	require.Len(t, functions.updates, 1)
	update := functions.updates[0]
	assert.Equal(t, "orders-api", update.name)

	// The agent layer is appended after the existing layers.
	assert.Equal(t, []string{baseArn, defenderArn}, update.layers)

	// Exactly two variables are merged in; the prior one survives.
	assert.Equal(t, map[string]string{
		"STAGE":                   "prod",
		"TW_POLICY":               "orders-api",
		"AWS_LAMBDA_EXEC_WRAPPER": "/opt/twistlock/wrapper.sh",
	}, update.env)
}

func TestScanRegionOverwritesInjectedKeys(t *testing.T) {
	cfg := testConfig()
	cfg.Apply = true

	fn := plainFunction("orders-api")
	fn.Env["AWS_LAMBDA_EXEC_WRAPPER"] = "/opt/other/wrapper.sh"

	functions := &fakeFunctions{functions: []models.FunctionDetail{fn}}
	s := New(cfg, functions, &fakeAssessor{}, testLogger())

	_, _, err := s.ScanRegion(context.Background(), "us-east-1")
	require.NoError(t, err)

	require.Len(t, functions.updates, 1)
	assert.Equal(t, "/opt/twistlock/wrapper.sh", functions.updates[0].env["AWS_LAMBDA_EXEC_WRAPPER"])
}

func TestScanRegionProtectedNeverMutated(t *testing.T) {
	cfg := testConfig()
	cfg.Apply = true

	byLayer := plainFunction("by-layer")
	byLayer.Layers = append(byLayer.Layers, defenderArn)

	byEnv := plainFunction("by-env")
	byEnv.Env["TW_POLICY"] = "by-env"

	functions := &fakeFunctions{functions: []models.FunctionDetail{byLayer, byEnv}}
	assessor := &fakeAssessor{}
	s := New(cfg, functions, assessor, testLogger())

	results, summary, err := s.ScanRegion(context.Background(), "us-east-1")
	require.NoError(t, err)

	assert.Equal(t, models.OutcomeProtected, results[0].Outcome)
	assert.Equal(t, models.OutcomeProtected, results[1].Outcome)
	assert.Equal(t, 2, summary.Protected)

	// Protected functions cost nothing: no assessment, no update.
	assert.Empty(t, assessor.calls)
	assert.Empty(t, functions.updates)
}

func TestScanRegionAuditModePlansOnly(t *testing.T) {
	cfg := testConfig() // Apply defaults to false

	functions := &fakeFunctions{functions: []models.FunctionDetail{plainFunction("orders-api")}}
	s := New(cfg, functions, &fakeAssessor{}, testLogger())

	results, summary, err := s.ScanRegion(context.Background(), "us-east-1")
	require.NoError(t, err)

	assert.Equal(t, models.OutcomePlanned, results[0].Outcome)
	assert.Equal(t, 1, summary.Planned)
	assert.Empty(t, functions.updates)
}

func TestScanRegionSkipsUnsafe(t *testing.T) {
	cfg := testConfig()
	cfg.Apply = true

	assessor := &fakeAssessor{verdicts: map[string]models.Verdict{
		"orders-api": {Safe: false, Reason: "unsupported runtime go1.x"},
	}}
	functions := &fakeFunctions{functions: []models.FunctionDetail{plainFunction("orders-api")}}
	s := New(cfg, functions, assessor, testLogger())

	results, summary, err := s.ScanRegion(context.Background(), "us-east-1")
	require.NoError(t, err)

	assert.Equal(t, models.OutcomeSkipped, results[0].Outcome)
	assert.Equal(t, "unsupported runtime go1.x", results[0].Reason)
	assert.Equal(t, 1, summary.Skipped)
	assert.Empty(t, functions.updates)
}

func TestScanRegionUpdateFailureContinues(t *testing.T) {
	cfg := testConfig()
	cfg.Apply = true

	functions := &fakeFunctions{
		functions:  []models.FunctionDetail{plainFunction("first"), plainFunction("second")},
		updateErrs: map[string]error{"first": errors.New("ResourceConflictException")},
	}
	s := New(cfg, functions, &fakeAssessor{}, testLogger())

	results, summary, err := s.ScanRegion(context.Background(), "us-east-1")
	require.NoError(t, err)
	require.Len(t, results, 2)

	assert.Equal(t, models.OutcomeFailed, results[0].Outcome)
	assert.Contains(t, results[0].Reason, "ResourceConflictException")
	assert.Equal(t, models.OutcomeAttached, results[1].Outcome)
	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, 1, summary.Attached)
}

func TestScanRegionAliasAudit(t *testing.T) {
	t.Run("advisory only, verdict unchanged", func(t *testing.T) {
		cfg := testConfig()

		functions := &fakeFunctions{
			functions: []models.FunctionDetail{plainFunction("orders-api")},
			aliases: map[string][]models.Alias{
				"orders-api": {
					{Name: "PROD", FunctionVersion: "3"},
					{Name: "LIVE", FunctionVersion: "$LATEST"},
				},
			},
			versions: map[string]models.FunctionDetail{
				"orders-api@3": plainFunction("orders-api"), // version without the agent
			},
		}
		s := New(cfg, functions, &fakeAssessor{}, testLogger())

		results, _, err := s.ScanRegion(context.Background(), "us-east-1")
		require.NoError(t, err)

		assert.Equal(t, models.OutcomePlanned, results[0].Outcome)
		assert.Equal(t, []string{"orders-api@3"}, functions.detailCalls,
			"$LATEST aliases must not trigger a version lookup")
	})

	t.Run("runs for skipped functions too", func(t *testing.T) {
		cfg := testConfig()

		assessor := &fakeAssessor{verdicts: map[string]models.Verdict{
			"orders-api": {Safe: false, Reason: "SnapStart is enabled"},
		}}
		functions := &fakeFunctions{
			functions: []models.FunctionDetail{plainFunction("orders-api")},
		}
		s := New(cfg, functions, assessor, testLogger())

		results, _, err := s.ScanRegion(context.Background(), "us-east-1")
		require.NoError(t, err)

		assert.Equal(t, models.OutcomeSkipped, results[0].Outcome)
		assert.Equal(t, 1, functions.aliasCalls)
	})

	t.Run("disabled by config", func(t *testing.T) {
		cfg := testConfig()
		cfg.AliasAudit = false

		functions := &fakeFunctions{functions: []models.FunctionDetail{plainFunction("orders-api")}}
		s := New(cfg, functions, &fakeAssessor{}, testLogger())

		_, _, err := s.ScanRegion(context.Background(), "us-east-1")
		require.NoError(t, err)
		assert.Zero(t, functions.aliasCalls)
	})

	t.Run("listing failure is swallowed", func(t *testing.T) {
		cfg := testConfig()

		functions := &fakeFunctions{
			functions: []models.FunctionDetail{plainFunction("orders-api")},
			aliasErr:  errors.New("AccessDenied"),
		}
		s := New(cfg, functions, &fakeAssessor{}, testLogger())

		results, _, err := s.ScanRegion(context.Background(), "us-east-1")
		require.NoError(t, err)
		assert.Equal(t, models.OutcomePlanned, results[0].Outcome)
	})
}

func TestScanRegionProgress(t *testing.T) {
	cfg := testConfig()

	functions := &fakeFunctions{
		functions: []models.FunctionDetail{plainFunction("first"), plainFunction("second")},
	}
	s := New(cfg, functions, &fakeAssessor{}, testLogger())

	var seen []string
	s.SetProgress(func(done, total int, name string) {
		seen = append(seen, name)
		assert.Equal(t, 2, total)
		assert.Equal(t, len(seen), done)
	})

	_, _, err := s.ScanRegion(context.Background(), "us-east-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"first", "second"}, seen)
}

func TestScanAll(t *testing.T) {
	t.Run("regions without a layer mapping are skipped", func(t *testing.T) {
		cfg := testConfig() // only us-east-1 is mapped

		var built []string
		factory := func(_ context.Context, region string) (FunctionAPI, Assessor, error) {
			built = append(built, region)
			return &fakeFunctions{functions: []models.FunctionDetail{plainFunction("orders-api")}},
				&fakeAssessor{}, nil
		}

		results, summaries, err := ScanAll(context.Background(), cfg,
			[]string{"us-east-1", "eu-west-1"}, factory, nil, testLogger())
		require.NoError(t, err)

		assert.Equal(t, []string{"us-east-1"}, built)
		require.Len(t, summaries, 1)
		assert.Equal(t, "us-east-1", summaries[0].Region)
		assert.Len(t, results, 1)
	})

	t.Run("a failed listing does not stop later regions", func(t *testing.T) {
		cfg := testConfig()
		cfg.Agent.LayerArns = map[string]string{
			"us-east-1": defenderArn,
			"eu-west-1": "arn:aws:lambda:eu-west-1:123456789012:layer:twistlock-defender:2",
		}

		factory := func(_ context.Context, region string) (FunctionAPI, Assessor, error) {
			if region == "us-east-1" {
				return &fakeFunctions{listErr: errors.New("ThrottlingException")}, &fakeAssessor{}, nil
			}
			fn := plainFunction("eu-api")
			fn.Region = "eu-west-1"
			return &fakeFunctions{functions: []models.FunctionDetail{fn}}, &fakeAssessor{}, nil
		}

		results, summaries, err := ScanAll(context.Background(), cfg,
			[]string{"us-east-1", "eu-west-1"}, factory, nil, testLogger())
		require.NoError(t, err)

		require.Len(t, summaries, 2)
		assert.Equal(t, 0, summaries[0].Total)
		assert.Equal(t, 1, summaries[1].Total)
		require.Len(t, results, 1)
		assert.Equal(t, "eu-api", results[0].FunctionName)
	})

	t.Run("a broken credential chain aborts", func(t *testing.T) {
		cfg := testConfig()

		factory := func(_ context.Context, _ string) (FunctionAPI, Assessor, error) {
			return nil, nil, errors.New("no EC2 IMDS role found")
		}

		_, _, err := ScanAll(context.Background(), cfg,
			[]string{"us-east-1"}, factory, nil, testLogger())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "us-east-1")
	})
}
