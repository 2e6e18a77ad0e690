package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// InfoVec publishes a constant series of value 1 whose labels carry
// structured metadata. A write replaces the previous field values of the
// same identity wholesale, so stale field combinations never linger.
type InfoVec struct {
	vec         *prometheus.GaugeVec
	fullName    string
	fieldLabels []string
}

func newInfo(reg prometheus.Registerer, name, help string, identityLabels []string, fieldLabels ...string) *InfoVec {
	vec := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: Namespace,
		Name:      name,
		Help:      help,
	}, append(append([]string{}, identityLabels...), fieldLabels...))
	reg.MustRegister(vec)
	return &InfoVec{
		vec:         vec,
		fullName:    Namespace + "_" + name,
		fieldLabels: fieldLabels,
	}
}

// Set replaces the series of the given identity with one carrying the new
// field values. Declared fields missing from the map become empty labels;
// an undeclared field is rejected with an error.
func (i *InfoVec) Set(identity prometheus.Labels, fields map[string]string) error {
	for key := range fields {
		if !i.declared(key) {
			return fmt.Errorf("%s: unknown field %q", i.fullName, key)
		}
	}

	i.vec.DeletePartialMatch(identity)

	full := make(prometheus.Labels, len(identity)+len(i.fieldLabels))
	for key, value := range identity {
		full[key] = value
	}
	for _, name := range i.fieldLabels {
		full[name] = fields[name]
	}
	i.vec.With(full).Set(1)
	return nil
}

func (i *InfoVec) declared(field string) bool {
	for _, name := range i.fieldLabels {
		if name == field {
			return true
		}
	}
	return false
}
