package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	yml "gopkg.in/yaml.v2"

	"github.com/nasa-jpl/wavelock/agilent"
	"github.com/nasa-jpl/wavelock/bristol"
	"github.com/nasa-jpl/wavelock/control"
	"github.com/nasa-jpl/wavelock/generichttp/wavelock"
	"github.com/nasa-jpl/wavelock/sim"
	"github.com/nasa-jpl/wavelock/units"
)

func writeFile(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "wavelock.yml")
	require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
	return p
}

func TestMissingFileGivesDefaults(t *testing.T) {
	c, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), c)
}

func TestFileOverridesDefaults(t *testing.T) {
	p := writeFile(t, `
Mock: true
Wavemeter:
  Read: wavelength
Control:
  Gain: -3.4e-6
  Mode: hysteretic
`)
	c, err := LoadConfig(p)
	require.NoError(t, err)
	assert.True(t, c.Mock)
	assert.Equal(t, "wavelength", c.Wavemeter.Read)
	assert.Equal(t, -3.4e-6, c.Control.Gain)
	assert.Equal(t, ":8000", c.Addr)
	assert.Equal(t, 1, c.Wavemeter.Channel)
	assert.Equal(t, 1e-3, c.Actuator.VoltsPerMilliVolt)

	d, err := c.Defaults()
	require.NoError(t, err)
	assert.Equal(t, control.Hysteretic, d.Mode)
}

func TestWrittenConfigReadsBack(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, yml.NewEncoder(&buf).Encode(DefaultConfig()))
	c, err := LoadConfig(writeFile(t, buf.String()))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), c)
}

func TestBadConfigValues(t *testing.T) {
	c := DefaultConfig()
	c.Control.Mode = "eventually"
	_, err := c.Defaults()
	assert.ErrorIs(t, err, control.ErrInvalidInput)

	c = DefaultConfig()
	c.Log.Level = "chatty"
	_, err = c.Logger()
	assert.Error(t, err)

	_, err = LoadConfig(writeFile(t, "Addr: [unterminated"))
	assert.Error(t, err)
}

func TestMockRig(t *testing.T) {
	c := DefaultConfig()
	c.Mock = true
	rig, err := BuildRig(context.Background(), c, zap.NewNop().Sugar())
	require.NoError(t, err)
	assert.IsType(t, &sim.Laser{}, rig.Handle.Meter)
	assert.NotNil(t, rig.Handle.Power)
	assert.Equal(t, 1, rig.Handle.Channel)
	assert.NoError(t, rig.Close())
}

func TestHardwareRigIsLazy(t *testing.T) {
	c := DefaultConfig()
	c.Actuator.Prepare = false
	c.Actuator.VoltsPerMilliVolt = 2e-3
	c.Wavemeter.Read = "nm"
	c.PowerMeter.Type = "wavemeter"
	rig, err := BuildRig(context.Background(), c, zap.NewNop().Sugar())
	require.NoError(t, err)
	assert.IsType(t, &bristol.Wavemeter{}, rig.Handle.Meter)
	act, ok := rig.Handle.Actuator.(*agilent.Actuator)
	require.True(t, ok)
	assert.Equal(t, 2e-3, act.VoltsPerMilliVolt)
	assert.Equal(t, rig.Handle.Meter, rig.Handle.Power)
	assert.Equal(t, units.WavelengthVac, rig.Handle.Read)
	assert.NoError(t, rig.Close())

	c.PowerMeter.Type = "bolometer"
	_, err = BuildRig(context.Background(), c, zap.NewNop().Sugar())
	assert.Error(t, err)

	c.PowerMeter.Type = "none"
	c.Wavemeter.Read = "furlongs"
	_, err = BuildRig(context.Background(), c, zap.NewNop().Sugar())
	assert.ErrorIs(t, err, units.ErrUnknownUnit)
}

func TestBuildMux(t *testing.T) {
	c := DefaultConfig()
	c.Mock = true
	c.Endpoint = "lab/wavelock/*"
	rig, err := BuildRig(context.Background(), c, zap.NewNop().Sugar())
	require.NoError(t, err)
	d, err := c.Defaults()
	require.NoError(t, err)
	mux := BuildMux(c, wavelock.NewHTTPWavelock(rig.Handle, d))

	w := httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/lab/wavelock/frequency", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"f64": 400}`, w.Body.String())

	w = httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/endpoints", nil))
	require.Equal(t, http.StatusOK, w.Code)
	var graph map[string][]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &graph))
	assert.Contains(t, graph["/lab/wavelock"], "GET /frequency")
	assert.Contains(t, graph["/lab/wavelock"], "POST /lock")
}

func execute(t *testing.T, args ...string) string {
	t.Helper()
	var out, errOut bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&errOut)
	rootCmd.SetArgs(args)
	require.NoError(t, rootCmd.Execute(), errOut.String())
	return out.String()
}

func TestCommands(t *testing.T) {
	p := filepath.Join(t.TempDir(), "wavelock.yml")
	t.Cleanup(func() { ConfigFileName = "wavelock.yml" })

	assert.Contains(t, execute(t, "version"), "wavelock version")

	execute(t, "--config", p, "mkconf")
	_, err := os.Stat(p)
	require.NoError(t, err)
	assert.Contains(t, execute(t, "--config", p, "conf"), "Endpoint: /wavelock")

	require.NoError(t, os.WriteFile(p, []byte("Mock: true\nLog:\n  Level: error\n"), 0o644))
	out := execute(t, "--config", p, "stabilize", "--reference", "400", "--max-iterations", "5")
	var res control.Result
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, control.Converged, res.Reason)
	assert.Equal(t, 400.0, res.Frequency)
}

func TestJobLocksDefaultEndpoint(t *testing.T) {
	c := DefaultConfig()
	c.Mock = true
	rig, err := BuildRig(context.Background(), c, zap.NewNop().Sugar())
	require.NoError(t, err)
	d, err := c.Defaults()
	require.NoError(t, err)
	h := wavelock.NewHTTPWavelock(rig.Handle, d)
	mux := BuildMux(c, h)

	do := func(method, path, body string) int {
		w := httptest.NewRecorder()
		mux.ServeHTTP(w, httptest.NewRequest(method, path, strings.NewReader(body)))
		return w.Code
	}
	require.Equal(t, "/wavelock", c.Endpoint)
	require.Equal(t, http.StatusOK, do(http.MethodPost, "/wavelock/signal", `{"f64": 2048}`))

	require.Equal(t, http.StatusAccepted,
		do(http.MethodPost, "/wavelock/triangle", `{"down": 400, "up": 400.001, "step": -1}`))
	assert.Equal(t, http.StatusLocked, do(http.MethodPost, "/wavelock/signal", `{"f64": 100}`))
	assert.Equal(t, http.StatusLocked, do(http.MethodGet, "/wavelock/signal", ""))
	assert.Equal(t, http.StatusLocked, do(http.MethodPost, "/wavelock/exposure", `{"f64": 10}`))
	assert.Equal(t, http.StatusConflict, do(http.MethodPost, "/wavelock/lock", `{"bool": false}`))
	assert.Equal(t, http.StatusLocked, do(http.MethodPost, "/wavelock/signal", `{"f64": 100}`))
	assert.Equal(t, http.StatusOK, do(http.MethodGet, "/wavelock/job", ""))

	require.Equal(t, http.StatusOK, do(http.MethodPost, "/wavelock/job/cancel", ""))
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	st, err := h.Jobs.Wait(ctx)
	require.NoError(t, err)
	assert.Equal(t, wavelock.Cancelled, st.State)
	assert.Equal(t, http.StatusOK, do(http.MethodGet, "/wavelock/signal", ""))
}
