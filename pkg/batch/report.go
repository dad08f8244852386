package batch

import (
	"fmt"
	"sort"

	"dvhcalc/pkg/dvh"
)

// Indices configures the plan quality indices added to a report.
type Indices struct {
	// Prescription is the reference dose (cGy) of the homogeneity and
	// gradient indices. Zero leaves both out.
	Prescription float64

	// External names the body structure whose DVH gives the gradient index.
	External string
}

// Metrics are the dose statistics of one structure.
type Metrics struct {
	D95 float64 `json:"d95"`

	// HI is the homogeneity index against the prescription.
	HI *float64 `json:"hi,omitempty"`
}

// Report is the serialised outcome of a run, keyed by structure name.
type Report struct {
	RunID string `json:"run_id"`

	DVHs    map[string]*dvh.DVH `json:"dvhs"`
	Metrics map[string]Metrics  `json:"metrics"`

	// GradientIndex is read from the external structure when one is named
	// and it receives the prescription dose.
	GradientIndex *float64 `json:"gradient_index,omitempty"`

	// Errors holds the message of every structure that failed.
	Errors map[string]string `json:"errors"`

	// Truncated holds the plane at which each truncated structure stopped.
	Truncated map[string]float64 `json:"truncated,omitempty"`
}

// NewReport collects outcomes into a report. A name shared by several
// structures is suffixed with the structure ID from its second use on, in
// ID order.
func NewReport(runID string, outcomes map[int]Outcome, idx Indices) *Report {
	r := &Report{
		RunID:   runID,
		DVHs:    make(map[string]*dvh.DVH, len(outcomes)),
		Metrics: make(map[string]Metrics, len(outcomes)),
		Errors:  make(map[string]string),
	}

	ids := make([]int, 0, len(outcomes))
	for id := range outcomes {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	used := make(map[string]bool, len(ids))
	for _, id := range ids {
		o := outcomes[id]
		key := uniqueKey(used, o.Name, id)

		if o.Err != nil {
			r.Errors[key] = o.Err.Error()
			continue
		}
		d := o.Result.DVH
		r.DVHs[key] = d
		r.Metrics[key] = metrics(d, idx.Prescription)
		if o.Result.Truncated {
			if r.Truncated == nil {
				r.Truncated = make(map[string]float64)
			}
			r.Truncated[key] = o.Result.StoppedAtZ
		}

		if r.GradientIndex == nil && idx.Prescription > 0 && idx.External != "" && o.Name == idx.External {
			if d.VolumeAtDose(idx.Prescription) > 0 {
				gi := dvh.GradientIndex(d, idx.Prescription)
				r.GradientIndex = &gi
			}
		}
	}
	return r
}

func metrics(d *dvh.DVH, prescription float64) Metrics {
	m := Metrics{D95: d.DoseAtRelativeVolume(95)}
	if prescription > 0 && d.Volume() > 0 {
		hi := dvh.HomogeneityIndex(d, prescription)
		m.HI = &hi
	}
	return m
}

// uniqueKey returns name, suffixed with #id as often as needed to avoid a key
// that is already taken, and marks it used.
func uniqueKey(used map[string]bool, name string, id int) string {
	key := name
	for used[key] {
		key = fmt.Sprintf("%s#%d", key, id)
	}
	used[key] = true
	return key
}
