package normalizer

import "fmt"

// RawMeasure is one "releve" as served by the portal.
type RawMeasure struct {
	StartDateTime    *string  `json:"dateDebutReleve"`
	EndDateTime      *string  `json:"dateFinReleve"`
	GasDate          *string  `json:"journeeGaziere"`
	StartIndex       *float64 `json:"indexDebut"`
	EndIndex         *float64 `json:"indexFin"`
	VolumeGross      *float64 `json:"volumeBrutConsomme"`
	VolumeConverted  *float64 `json:"volumeConverti"`
	Energy           *float64 `json:"energieConsomme"`
	Temperature      *float64 `json:"temperature"`
	ConversionFactor *float64 `json:"coeffConversion"`
}

// RawThreshold is one monthly "seuil".
type RawThreshold struct {
	Energy *float64 `json:"valeur"`
	Year   *int     `json:"annee"`
	Month  *int     `json:"mois"`
}

type RawMeterPoint struct {
	Alias          *string `json:"alias"`
	ID             *string `json:"pce"`
	ActivationDate *string `json:"dateActivation"`
	Frequency      *string `json:"frequenceReleve"`
	State          *string `json:"etat"`
	OwnerName      *string `json:"nomTitulaire"`
	PostalCode     *string `json:"codePostal"`
}

var (
	measureKeys = []string{
		"dateDebutReleve", "dateFinReleve", "journeeGaziere",
		"indexDebut", "indexFin", "volumeBrutConsomme", "volumeConverti",
		"energieConsomme", "temperature", "coeffConversion",
	}
	thresholdKeys  = []string{"valeur", "annee", "mois"}
	meterPointKeys = []string{
		"alias", "pce", "dateActivation", "frequenceReleve",
		"etat", "nomTitulaire", "codePostal",
	}
)

// MissingFieldError is returned when a raw record lacks a key the portal
// always sends. A null value is not a missing key.
type MissingFieldError struct {
	Record string
	Field  string
}

func (e *MissingFieldError) Error() string {
	return fmt.Sprintf("%s record is missing field %q", e.Record, e.Field)
}

// FieldError reports a present but unparsable value.
type FieldError struct {
	Field string
	Value string
	Err   error
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("field %q has invalid value %q: %v", e.Field, e.Value, e.Err)
}

func (e *FieldError) Unwrap() error {
	return e.Err
}
