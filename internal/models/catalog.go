package models

// LanguageInfo describes a language offered by the setup screen
type LanguageInfo struct {
	ID           Language `yaml:"id" json:"id"`
	Label        string   `yaml:"label" json:"label"`                 // shown in the editor header
	GatewayLabel string   `yaml:"gateway_label" json:"gatewayLabel"` // sent to the model
	Skeleton     string   `yaml:"skeleton" json:"skeleton"`
}
