// Package proportion estimates missing injected versions with the
// Proportion technique: P = (FV-IV)/(FV-OV) learned from tickets with a
// known injected version and inverted for tickets without one.
package proportion

import (
	"math"
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/rohankatakam/defectlab/internal/models"
	"github.com/rohankatakam/defectlab/internal/timeline"
)

// DefaultThreshold is the number of known tickets needed before the
// project's own expanding mean replaces the cold-start value
const DefaultThreshold = 5

// TicketP returns the proportion of a ticket with known IV, OV and FV.
// When OV == FV the distance is not normalised.
func TicketP(t *models.Ticket) float64 {
	fv := float64(t.FixedVersion.Index)
	ov := float64(t.OpeningVersion.Index)
	iv := float64(t.InjectedVersion.Index)

	if t.OpeningVersion.Index == t.FixedVersion.Index {
		return fv - iv
	}
	return (fv - iv) / (fv - ov)
}

// InjectedIndex inverts P for a ticket's OV and FV indices. The result is
// never below 1.
func InjectedIndex(p float64, ov, fv int) int {
	var iv int
	if ov == fv {
		iv = int(math.Round(float64(fv) - p))
	} else {
		iv = fv - int(math.Round(p*float64(fv-ov)))
	}
	if iv < 1 {
		iv = 1
	}
	return iv
}

// Estimator assigns injected versions to the tickets of one project
type Estimator struct {
	timeline  *timeline.Timeline
	coldP     float64
	threshold int
	logger    logrus.FieldLogger
}

// Estimate is the outcome of one Process call
type Estimate struct {
	Ticket    string  `json:"ticket" yaml:"ticket"`
	P         float64 `json:"p" yaml:"p"`
	ColdStart bool    `json:"cold_start" yaml:"cold_start"`
	Injected  int     `json:"injected" yaml:"injected"`
}

// NewEstimator creates an estimator over tl with the given cold-start value.
// A threshold below 1 selects DefaultThreshold.
func NewEstimator(tl *timeline.Timeline, coldP float64, threshold int, logger logrus.FieldLogger) *Estimator {
	if threshold < 1 {
		threshold = DefaultThreshold
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Estimator{timeline: tl, coldP: coldP, threshold: threshold, logger: logger}
}

// Process walks tickets in ascending resolution order and fills in IV and AV
// for those without an injected version. Tickets that already carry an IV
// seed the known list; estimated tickets never join it. The estimate for a
// ticket uses only known tickets resolved strictly before it.
//
// Tickets are modified in place and returned in resolution order.
func (e *Estimator) Process(tickets []*models.Ticket) ([]*models.Ticket, []Estimate) {
	ordered := append([]*models.Ticket(nil), tickets...)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].ResolutionDate.Before(ordered[j].ResolutionDate)
	})

	var (
		known     []*models.Ticket
		estimates []Estimate
	)

	for _, t := range ordered {
		if t.HasIV() {
			known = append(known, t)
			continue
		}
		if !t.Resolvable() {
			continue
		}

		before := knownBefore(known, t)
		p, cold := e.coldP, true
		if len(before) >= e.threshold {
			p, cold = Mean(before), false
		}

		idx := InjectedIndex(p, t.OpeningVersion.Index, t.FixedVersion.Index)
		t.InjectedVersion = e.timeline.ByIndex(idx)
		t.IVOrigin = models.IVEstimated
		t.AffectedVersions = e.timeline.AffectedRange(t.InjectedVersion, t.FixedVersion)

		estimates = append(estimates, Estimate{Ticket: t.Key, P: p, ColdStart: cold, Injected: idx})
	}

	coldCount := 0
	for _, est := range estimates {
		if est.ColdStart {
			coldCount++
		}
	}
	e.logger.WithFields(logrus.Fields{
		"known":      len(known),
		"estimated":  len(estimates),
		"cold_start": coldCount,
	}).Info("injected versions estimated")

	return ordered, estimates
}

// knownBefore returns the prefix of known (ordered by resolution) resolved
// strictly before t
func knownBefore(known []*models.Ticket, t *models.Ticket) []*models.Ticket {
	n := sort.Search(len(known), func(i int) bool {
		return !known[i].ResolutionDate.Before(t.ResolutionDate)
	})
	return known[:n]
}

// Mean returns the average P of tickets, or 0 for an empty slice
func Mean(tickets []*models.Ticket) float64 {
	if len(tickets) == 0 {
		return 0
	}
	sum := 0.0
	for _, t := range tickets {
		sum += TicketP(t)
	}
	return sum / float64(len(tickets))
}
