// Package sector defines the optional industry-classification collaborator.
// The canonical ledger never depends on its output; when no classifier is
// configured, the sector column simply stays empty.
package sector

// Classifier maps an issuer's company name to an industry sector label.
// ok is false when the classifier has no opinion.
type Classifier interface {
	Classify(companyName string) (sector string, ok bool)
}

// None is the default: it classifies nothing.
type None struct{}

func (None) Classify(string) (string, bool) { return "", false }
