package modserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cucumber/godog"
)

var (
	errExpectedLoadFailure      = errors.New("expected the load to fail")
	errExpectedExecutionFailure = errors.New("expected execution to fail")
	errNoSnapshot               = errors.New("no snapshot was loaded")
)

// configBDDContext holds the state of one scenario.
type configBDDContext struct {
	dir     string
	source  *StaticSource
	fatals  *fatalRecorder
	clock   *fakeClock
	runtime *Runtime

	snapshots []*Snapshot
	loadErr   error
	execErr   error

	mu       sync.Mutex
	stepsRun []string
	timeouts atomic.Int32
}

func (c *configBDDContext) reset() error {
	dir, err := os.MkdirTemp("", "modserver-bdd-*")
	if err != nil {
		return err
	}
	c.dir = dir
	c.source = NewStaticSource()
	c.fatals = &fatalRecorder{}
	c.clock = newFakeClock()
	c.runtime = nil
	c.snapshots = nil
	c.loadErr = nil
	c.execErr = nil
	c.mu.Lock()
	c.stepsRun = nil
	c.mu.Unlock()
	c.timeouts.Store(0)
	return nil
}

func (c *configBDDContext) cleanup() {
	if c.dir != "" {
		_ = os.RemoveAll(c.dir)
	}
}

func (c *configBDDContext) ensureRuntime() error {
	if c.runtime != nil {
		return nil
	}
	rt, err := NewRuntime(c.dir,
		WithSource(c.source),
		WithFatalHandler(c.fatals.handle),
		WithTTL(2*time.Second),
		WithClock(c.clock.Now),
	)
	if err != nil {
		return err
	}
	c.runtime = rt
	return nil
}

func (c *configBDDContext) writeFile(rel, content string) error {
	path := filepath.Join(c.dir, rel)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(content), 0o600)
}

func (c *configBDDContext) recordStep(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stepsRun = append(c.stepsRun, name)
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

func (c *configBDDContext) anEmptyAppDirectory() error {
	_, err := os.Stat(c.dir)
	return err
}

func (c *configBDDContext) aModuleWithNoContributions(id string) error {
	return c.source.Register(id, moduleFactory(nil))
}

func (c *configBDDContext) aModuleWhoseLoadFails(id, message string) error {
	return c.source.Register(id, moduleFactory(func(m *testModule) {
		m.loadErr = errors.New(message)
	}))
}

func (c *configBDDContext) theBuiltInResourceType(typeID string) error {
	return c.source.Register(typeID, testResourceType(typeID))
}

func (c *configBDDContext) aResourceDirectoryDeclaringType(name, typeID string) error {
	data, err := json.Marshal(map[string]any{"type": typeID})
	if err != nil {
		return err
	}
	return c.writeFile(filepath.Join(ResourcesDir, name, "config.json"), string(data))
}

func (c *configBDDContext) aResourceDirectoryWithoutAConfigFile(name string) error {
	return os.MkdirAll(filepath.Join(c.dir, ResourcesDir, name), 0o755)
}

func (c *configBDDContext) aModuleDeclaringTheExtensionPoint(id, point string) error {
	return c.source.Register(id, contributor([]string{point}, nil))
}

func (c *configBDDContext) aModuleAddingLenientMiddlewareTo(id, point string) error {
	return c.source.Register(id, contributor(nil, map[string][]string{point: {"collect"}}, Lenient()))
}

func (c *configBDDContext) aModuleAddingMiddlewareTo(id, point string) error {
	return c.source.Register(id, contributor(nil, map[string][]string{point: {"collect"}}))
}

// aModuleAddingSteps registers steps named in list; a trailing "!" marks a
// step that fails with errBoom.
func (c *configBDDContext) aModuleAddingSteps(id, list, point string) error {
	names := splitList(list)
	return c.source.Register(id, ModuleFunc(func(mid string, opts ModuleOptions) (Module, error) {
		m := NewBaseModule(mid, opts)
		for _, raw := range names {
			name := strings.TrimSuffix(raw, "!")
			fails := name != raw
			m.AddMiddleware(point, name, func(context.Context, ...any) error {
				c.recordStep(name)
				if fails {
					return errBoom
				}
				return nil
			})
		}
		return m, nil
	}))
}

func (c *configBDDContext) aModuleAddingASlowStep(id, name, point string, ms int) error {
	return c.source.Register(id, ModuleFunc(func(mid string, opts ModuleOptions) (Module, error) {
		m := NewBaseModule(mid, opts)
		m.AddMiddleware(point, name, func(context.Context, ...any) error {
			time.Sleep(time.Duration(ms) * time.Millisecond)
			c.recordStep(name)
			return nil
		})
		return m, nil
	}))
}

func (c *configBDDContext) iGetTheConfig() error {
	if err := c.ensureRuntime(); err != nil {
		return err
	}
	snap, err := c.runtime.GetConfig(context.Background())
	c.loadErr = err
	if err == nil {
		c.snapshots = append(c.snapshots, snap)
	}
	return nil
}

func (c *configBDDContext) iInvalidateTheCache() error {
	if err := c.ensureRuntime(); err != nil {
		return err
	}
	c.runtime.InvalidateCache()
	return nil
}

func (c *configBDDContext) theTTLElapses() error {
	c.clock.Advance(3 * time.Second)
	return nil
}

func (c *configBDDContext) iExecute(point string) error {
	return c.execute(point)
}

func (c *configBDDContext) iExecuteWithABudget(point string, ms int) error {
	return c.execute(point, WithTimeout(time.Duration(ms)*time.Millisecond))
}

func (c *configBDDContext) execute(point string, opts ...ExecuteOption) error {
	if err := c.ensureRuntime(); err != nil {
		return err
	}
	opts = append(opts, OnTimeout(func(MiddlewareEntry) { c.timeouts.Add(1) }))
	_, c.execErr = c.runtime.Execute(context.Background(), point, nil, opts...)
	return nil
}

func (c *configBDDContext) theLoadShouldSucceed() error {
	return c.loadErr
}

func (c *configBDDContext) theLoadShouldFailWith(message string) error {
	if c.loadErr == nil {
		return errExpectedLoadFailure
	}
	if !strings.Contains(c.loadErr.Error(), message) {
		return fmt.Errorf("load error %q does not mention %q", c.loadErr, message)
	}
	return nil
}

func (c *configBDDContext) aFatalErrorShouldBeReportedFor(unit string) error {
	for _, f := range c.fatals.all() {
		if f.Unit == unit {
			return nil
		}
	}
	return fmt.Errorf("no fatal error reported for %s", unit)
}

func (c *configBDDContext) latest() (*Snapshot, error) {
	if len(c.snapshots) == 0 {
		return nil, errNoSnapshot
	}
	return c.snapshots[len(c.snapshots)-1], nil
}

func (c *configBDDContext) theSnapshotModulesShouldInclude(list string) error {
	snap, err := c.latest()
	if err != nil {
		return err
	}
	for _, id := range splitList(list) {
		if _, ok := snap.Modules[id]; !ok {
			return fmt.Errorf("module %s missing from %v", id, snap.ModuleIDs())
		}
	}
	return nil
}

func (c *configBDDContext) theSnapshotResourcesShouldBe(list string) error {
	snap, err := c.latest()
	if err != nil {
		return err
	}
	if got := resourceNames(snap.Resources); !slices.Equal(got, splitList(list)) {
		return fmt.Errorf("resources are %v, want %s", got, list)
	}
	return nil
}

func (c *configBDDContext) theSnapshotResourceTypesShouldBe(list string) error {
	snap, err := c.latest()
	if err != nil {
		return err
	}
	if got := sortedKeys(snap.ResourceTypes); !slices.Equal(got, splitList(list)) {
		return fmt.Errorf("resource types are %v, want %s", got, list)
	}
	return nil
}

func (c *configBDDContext) everyMiddlewareStackShouldBeEmpty() error {
	snap, err := c.latest()
	if err != nil {
		return err
	}
	for point, stack := range snap.Middleware {
		if len(stack) != 0 {
			return fmt.Errorf("stack %s has %d entries", point, len(stack))
		}
	}
	return nil
}

func (c *configBDDContext) thereShouldBeNoStack(point string) error {
	snap, err := c.latest()
	if err != nil {
		return err
	}
	if _, ok := snap.Stack(point); ok {
		return fmt.Errorf("unexpected stack %s", point)
	}
	return nil
}

func (c *configBDDContext) bothSnapshotsShouldBeTheSameInstance() error {
	if len(c.snapshots) != 2 {
		return fmt.Errorf("expected 2 snapshots, got %d", len(c.snapshots))
	}
	if c.snapshots[0] != c.snapshots[1] {
		return errors.New("snapshots differ")
	}
	return nil
}

func (c *configBDDContext) theSnapshotsShouldBeDifferentInstances() error {
	if len(c.snapshots) != 2 {
		return fmt.Errorf("expected 2 snapshots, got %d", len(c.snapshots))
	}
	if c.snapshots[0] == c.snapshots[1] {
		return errors.New("snapshots are the same instance")
	}
	return nil
}

func (c *configBDDContext) executionShouldFailWith(message string) error {
	if c.execErr == nil {
		return errExpectedExecutionFailure
	}
	if !strings.Contains(c.execErr.Error(), message) {
		return fmt.Errorf("execution error %q does not mention %q", c.execErr, message)
	}
	return nil
}

func (c *configBDDContext) executionShouldSucceed() error {
	return c.execErr
}

func (c *configBDDContext) theStepsRunShouldBe(list string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !slices.Equal(c.stepsRun, splitList(list)) {
		return fmt.Errorf("steps run %v, want %s", c.stepsRun, list)
	}
	return nil
}

func (c *configBDDContext) theTimeoutCallbackShouldHaveFired(n int) error {
	if got := int(c.timeouts.Load()); got != n {
		return fmt.Errorf("timeout callback fired %d times, want %d", got, n)
	}
	return nil
}

func InitializeConfigScenario(ctx *godog.ScenarioContext) {
	c := &configBDDContext{}

	ctx.Before(func(ctx context.Context, _ *godog.Scenario) (context.Context, error) {
		return ctx, c.reset()
	})
	ctx.After(func(ctx context.Context, _ *godog.Scenario, err error) (context.Context, error) {
		c.cleanup()
		return ctx, nil
	})

	ctx.Step(`^an empty app directory$`, c.anEmptyAppDirectory)
	ctx.Step(`^a module "([^"]*)" with no contributions$`, c.aModuleWithNoContributions)
	ctx.Step(`^a module "([^"]*)" whose load fails with "([^"]*)"$`, c.aModuleWhoseLoadFails)
	ctx.Step(`^the built-in resource type "([^"]*)"$`, c.theBuiltInResourceType)
	ctx.Step(`^a resource directory "([^"]*)" declaring type "([^"]*)"$`, c.aResourceDirectoryDeclaringType)
	ctx.Step(`^a resource directory "([^"]*)" without a config file$`, c.aResourceDirectoryWithoutAConfigFile)
	ctx.Step(`^a module "([^"]*)" declaring the extension point "([^"]*)"$`, c.aModuleDeclaringTheExtensionPoint)
	ctx.Step(`^a module "([^"]*)" adding lenient middleware to "([^"]*)"$`, c.aModuleAddingLenientMiddlewareTo)
	ctx.Step(`^a module "([^"]*)" adding middleware to "([^"]*)"$`, c.aModuleAddingMiddlewareTo)
	ctx.Step(`^a module "([^"]*)" adding steps "([^"]*)" to "([^"]*)"$`, c.aModuleAddingSteps)
	ctx.Step(`^a module "([^"]*)" adding a step "([^"]*)" to "([^"]*)" that takes (\d+)ms$`, c.aModuleAddingASlowStep)

	ctx.Step(`^I get the config$`, c.iGetTheConfig)
	ctx.Step(`^I get the config again$`, c.iGetTheConfig)
	ctx.Step(`^I invalidate the cache$`, c.iInvalidateTheCache)
	ctx.Step(`^the TTL elapses$`, c.theTTLElapses)
	ctx.Step(`^I execute "([^"]*)"$`, c.iExecute)
	ctx.Step(`^I execute "([^"]*)" with a (\d+)ms budget$`, c.iExecuteWithABudget)

	ctx.Step(`^the load should succeed$`, c.theLoadShouldSucceed)
	ctx.Step(`^the load should fail with "(.*)"$`, c.theLoadShouldFailWith)
	ctx.Step(`^a fatal error should be reported for "([^"]*)"$`, c.aFatalErrorShouldBeReportedFor)
	ctx.Step(`^the snapshot modules should include "([^"]*)"$`, c.theSnapshotModulesShouldInclude)
	ctx.Step(`^the snapshot resources should be "([^"]*)"$`, c.theSnapshotResourcesShouldBe)
	ctx.Step(`^the snapshot resource types should be "([^"]*)"$`, c.theSnapshotResourceTypesShouldBe)
	ctx.Step(`^every middleware stack should be empty$`, c.everyMiddlewareStackShouldBeEmpty)
	ctx.Step(`^there should be no "([^"]*)" stack$`, c.thereShouldBeNoStack)
	ctx.Step(`^both snapshots should be the same instance$`, c.bothSnapshotsShouldBeTheSameInstance)
	ctx.Step(`^the snapshots should be different instances$`, c.theSnapshotsShouldBeDifferentInstances)
	ctx.Step(`^execution should fail with "(.*)"$`, c.executionShouldFailWith)
	ctx.Step(`^execution should succeed$`, c.executionShouldSucceed)
	ctx.Step(`^the steps run should be "([^"]*)"$`, c.theStepsRunShouldBe)
	ctx.Step(`^the timeout callback should have fired (\d+) time$`, c.theTimeoutCallbackShouldHaveFired)
}

func TestConfigFeatures(t *testing.T) {
	suite := godog.TestSuite{
		ScenarioInitializer: InitializeConfigScenario,
		Options: &godog.Options{
			Format:   "pretty",
			Paths:    []string{"features"},
			TestingT: t,
			Strict:   true,
		},
	}

	if suite.Run() != 0 {
		t.Fatal("non-zero status returned, failed to run feature tests")
	}
}
