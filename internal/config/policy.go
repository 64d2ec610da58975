package config

import (
	"fmt"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"github.com/tournevent/tarif/internal/pricing"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"
)

const policyKey = "pricing"

// PolicyHolder serves the pricing policy from an optional YAML file and
// reloads it when the file changes. Invalid edits are logged and ignored.
type PolicyHolder struct {
	current atomic.Value // holds pricing.Policy
	v       *viper.Viper
	logger  *otelzap.Logger
}

// NewPolicyHolder loads the policy at path. An empty path serves the default
// policy and watches nothing.
//
// The file looks like:
//
//	pricing:
//	  overweightThresholdKg: 5
//	  nearZoneMax: 3
//	  nearRatePerKg: 50
//	  farRatePerKg: 100
//	  zoneRates:
//	    5: 150
func NewPolicyHolder(path string, logger *otelzap.Logger) (*PolicyHolder, error) {
	if logger == nil {
		logger = otelzap.New(zap.NewNop())
	}
	h := &PolicyHolder{logger: logger}
	if path == "" {
		h.current.Store(pricing.DefaultPolicy())
		return h, nil
	}

	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading pricing policy: %w", err)
	}
	h.v = v

	policy, err := h.decode()
	if err != nil {
		return nil, err
	}
	h.current.Store(policy)

	v.OnConfigChange(func(e fsnotify.Event) {
		if err := h.apply(); err != nil {
			h.logger.Warn("Invalid pricing policy ignored", zap.String("file", e.Name), zap.Error(err))
			return
		}
		h.logger.Info("Pricing policy reloaded", zap.String("file", e.Name))
	})
	v.WatchConfig()
	return h, nil
}

// Current returns the policy in force.
func (h *PolicyHolder) Current() pricing.Policy {
	return h.current.Load().(pricing.Policy)
}

// Reload re-reads the file. On error the previous policy stays in force.
func (h *PolicyHolder) Reload() error {
	if h.v == nil {
		return nil
	}
	if err := h.v.ReadInConfig(); err != nil {
		return fmt.Errorf("reading pricing policy: %w", err)
	}
	return h.apply()
}

func (h *PolicyHolder) apply() error {
	policy, err := h.decode()
	if err != nil {
		return err
	}
	h.current.Store(policy)
	return nil
}

// decode overlays the file on the default policy, so omitted keys keep their
// stock values.
func (h *PolicyHolder) decode() (pricing.Policy, error) {
	if !h.v.IsSet(policyKey) {
		return pricing.Policy{}, fmt.Errorf("pricing policy: missing %q section", policyKey)
	}
	policy := pricing.DefaultPolicy()
	if err := h.v.UnmarshalKey(policyKey, &policy); err != nil {
		return pricing.Policy{}, fmt.Errorf("decoding pricing policy: %w", err)
	}
	if err := policy.Validate(); err != nil {
		return pricing.Policy{}, fmt.Errorf("invalid pricing policy: %w", err)
	}
	return policy, nil
}

var _ pricing.Source = (*PolicyHolder)(nil)
