package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// EnumVec publishes a state set: one sample per possible state, where the
// sample of the current state is 1 and every other state is 0. The state
// label carries the full metric name, following the OpenMetrics state set
// convention.
type EnumVec struct {
	vec        *prometheus.GaugeVec
	fullName   string
	stateLabel string
	states     []string
}

func newEnum(reg prometheus.Registerer, name, help string, labelNames []string, states ...string) *EnumVec {
	fullName := Namespace + "_" + name
	vec := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: Namespace,
		Name:      name,
		Help:      help,
	}, append(append([]string{}, labelNames...), fullName))
	reg.MustRegister(vec)
	return &EnumVec{
		vec:        vec,
		fullName:   fullName,
		stateLabel: fullName,
		states:     states,
	}
}

// Set writes the one hot samples of the state set for the given label values.
// A state outside the declared vocabulary is rejected with an error.
func (e *EnumVec) Set(labels prometheus.Labels, state string) error {
	if !e.knows(state) {
		return fmt.Errorf("%s: unknown state %q, expected one of %v", e.fullName, state, e.states)
	}
	for _, s := range e.states {
		full := make(prometheus.Labels, len(labels)+1)
		for key, value := range labels {
			full[key] = value
		}
		full[e.stateLabel] = s
		value := 0.0
		if s == state {
			value = 1
		}
		e.vec.With(full).Set(value)
	}
	return nil
}

// States returns the declared vocabulary.
func (e *EnumVec) States() []string {
	return append([]string{}, e.states...)
}

func (e *EnumVec) knows(state string) bool {
	for _, s := range e.states {
		if s == state {
			return true
		}
	}
	return false
}
