package clinical

import (
	"fmt"
	"strings"
	"time"
)

// Algorithm is one of the closed set of antihypertensive medication algorithms.
type Algorithm string

const (
	Labetalol   Algorithm = "labetalol"
	Hydralazine Algorithm = "hydralazine"
	Nifedipine  Algorithm = "nifedipine"
)

// Algorithms lists every supported algorithm in display order.
var Algorithms = []Algorithm{Labetalol, Hydralazine, Nifedipine}

// Route of administration.
type Route string

const (
	RouteIV Route = "IV"
	RoutePO Route = "PO"
)

// Contraindication flags.
const (
	ContraAsthma            = "asthma"
	ContraSevereBradycardia = "severe_bradycardia"
)

// Dose is one step of an algorithm.
type Dose struct {
	Step       int           `json:"step"` // 1-based
	Medication string        `json:"medication"`
	Amount     string        `json:"dose"`
	Route      Route         `json:"route"`
	Wait       time.Duration `json:"-"`
	WaitMins   int           `json:"wait_minutes"`
}

// Protocol is the static definition of an algorithm.
type Protocol struct {
	Algorithm         Algorithm `json:"algorithm"`
	Name              string    `json:"name"`
	Doses             []Dose    `json:"doses"`
	MaxDoses          int       `json:"max_doses"`
	Contraindications []string  `json:"contraindications"`
}

func dose(step int, med, amount string, route Route, waitMins int) Dose {
	return Dose{
		Step:       step,
		Medication: med,
		Amount:     amount,
		Route:      route,
		Wait:       time.Duration(waitMins) * time.Minute,
		WaitMins:   waitMins,
	}
}

var protocols = map[Algorithm]Protocol{
	Labetalol: {
		Algorithm: Labetalol,
		Name:      "Labetalol",
		Doses: []Dose{
			dose(1, "Labetalol", "20mg", RouteIV, 10),
			dose(2, "Labetalol", "40mg", RouteIV, 10),
			dose(3, "Labetalol", "80mg", RouteIV, 10),
		},
		MaxDoses:          3,
		Contraindications: []string{ContraAsthma, ContraSevereBradycardia},
	},
	Hydralazine: {
		Algorithm: Hydralazine,
		Name:      "Hydralazine",
		Doses: []Dose{
			dose(1, "Hydralazine", "5-10mg", RouteIV, 20),
			dose(2, "Hydralazine", "10mg", RouteIV, 20),
		},
		MaxDoses: 2,
	},
	Nifedipine: {
		Algorithm: Nifedipine,
		Name:      "Nifedipine",
		Doses: []Dose{
			dose(1, "Nifedipine", "10mg", RoutePO, 20),
			dose(2, "Nifedipine", "20mg", RoutePO, 20),
			dose(3, "Nifedipine", "20mg", RoutePO, 20),
		},
		MaxDoses: 3,
	},
}

// ParseAlgorithm validates an algorithm name.
func ParseAlgorithm(s string) (Algorithm, error) {
	a := Algorithm(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := protocols[a]; !ok {
		return "", fmt.Errorf("unknown medication algorithm %q", s)
	}
	return a, nil
}

// ProtocolFor returns the protocol definition of an algorithm.
func ProtocolFor(a Algorithm) (Protocol, error) {
	p, ok := protocols[a]
	if !ok {
		return Protocol{}, fmt.Errorf("unknown medication algorithm %q", a)
	}
	out := p
	out.Doses = append([]Dose(nil), p.Doses...)
	out.Contraindications = append([]string(nil), p.Contraindications...)
	return out, nil
}

// HasAlgorithmFailed reports whether every dose of the algorithm has been used.
func HasAlgorithmFailed(a Algorithm, currentStep int) bool {
	p, ok := protocols[a]
	if !ok {
		return false
	}
	return currentStep >= p.MaxDoses
}

// NextDose returns the dose that follows currentStep doses. ok is false once the
// protocol is exhausted.
func NextDose(a Algorithm, currentStep int) (Dose, bool) {
	p, ok := protocols[a]
	if !ok || currentStep < 0 || currentStep >= len(p.Doses) || currentStep >= p.MaxDoses {
		return Dose{}, false
	}
	return p.Doses[currentStep], true
}

// Warnings returns advisory contraindication warnings for a patient. They never
// block selection.
func Warnings(a Algorithm, hasAsthma bool) []string {
	p, ok := protocols[a]
	if !ok || !hasAsthma {
		return nil
	}
	for _, c := range p.Contraindications {
		if c == ContraAsthma {
			return []string{fmt.Sprintf("%s may be contraindicated: patient has asthma", p.Name)}
		}
	}
	return nil
}
