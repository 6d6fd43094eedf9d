package config

import (
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

const validYAML = `
diff:
  update_mode: upsert
  safe_mode: true
  enable_orphan_detection: true
planner:
  max_batch_size: 50
throttle:
  initial_concurrency: 4
  min_concurrency: 1
  max_concurrency: 16
  success_streak_to_grow: 5
  latency_budget_ms: 500
persistence:
  driver: sqlite
  dsn: ./reconciler.db
  retention_days: 30
circuit:
  failure_threshold: 5
  reset_timeout_seconds: 30
logging:
  level: info
  format: json
metrics:
  enabled: true
  listen: ":9090"
tracing:
  enabled: false
resolver_cache:
  redis_address: ""
  ttl_seconds: 60
`

func writeTempConfig(dir, contents string) string {
	path := filepath.Join(dir, "config.yaml")
	Expect(os.WriteFile(path, []byte(contents), 0o644)).To(Succeed())
	return path
}

var _ = Describe("Load", func() {
	var dir string

	BeforeEach(func() {
		dir = GinkgoT().TempDir()
	})

	It("parses a valid config file", func() {
		path := writeTempConfig(dir, validYAML)
		cfg, err := Load(path)
		Expect(err).NotTo(HaveOccurred())
		Expect(cfg.Diff.UpdateMode).To(Equal(UpdateModeUpsert))
		Expect(cfg.Diff.SafeMode).To(BeTrue())
		Expect(cfg.Persistence.Driver).To(Equal("sqlite"))
		Expect(cfg.Throttle.MaxConcurrency).To(Equal(16))
	})

	It("fails validation when update_mode is not one of the enum values", func() {
		bad := validYAML
		bad = regexpReplaceUpdateMode(bad)
		path := writeTempConfig(dir, bad)
		_, err := Load(path)
		Expect(err).To(HaveOccurred())
	})

	It("fails validation when max_concurrency is below min_concurrency", func() {
		bad := `
diff:
  update_mode: strict
throttle:
  initial_concurrency: 4
  min_concurrency: 10
  max_concurrency: 2
  success_streak_to_grow: 5
  latency_budget_ms: 500
persistence:
  driver: sqlite
  dsn: ./x.db
circuit:
  failure_threshold: 5
  reset_timeout_seconds: 30
logging:
  level: info
  format: json
`
		path := writeTempConfig(dir, bad)
		_, err := Load(path)
		Expect(err).To(HaveOccurred())
	})

	It("applies environment overrides after parsing", func() {
		path := writeTempConfig(dir, validYAML)
		os.Setenv("BAMRECONCILER_SAFE_MODE", "false")
		defer os.Unsetenv("BAMRECONCILER_SAFE_MODE")
		cfg, err := Load(path)
		Expect(err).NotTo(HaveOccurred())
		Expect(cfg.Diff.SafeMode).To(BeFalse())
	})

	It("errors on a missing file", func() {
		_, err := Load(filepath.Join(dir, "missing.yaml"))
		Expect(err).To(HaveOccurred())
	})
})

var _ = Describe("applyHotReloadable", func() {
	It("updates only the hot-reloadable fields", func() {
		dir := GinkgoT().TempDir()
		path := writeTempConfig(dir, validYAML)
		cfg, err := Load(path)
		Expect(err).NotTo(HaveOccurred())

		other := *cfg
		other.Throttle.MaxConcurrency = 32
		other.Logging.Level = "debug"
		other.Persistence.Driver = "postgres"

		cfg.applyHotReloadable(&other)
		Expect(cfg.Throttle.MaxConcurrency).To(Equal(32))
		Expect(cfg.Logging.Level).To(Equal("debug"))
		Expect(cfg.Persistence.Driver).To(Equal("sqlite"))
	})
})

func regexpReplaceUpdateMode(s string) string {
	return replaceOnce(s, "update_mode: upsert", "update_mode: bogus")
}

func replaceOnce(s, old, new string) string {
	for i := 0; i+len(old) <= len(s); i++ {
		if s[i:i+len(old)] == old {
			return s[:i] + new + s[i+len(old):]
		}
	}
	return s
}
