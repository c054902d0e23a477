package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractPortuguese(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"empty", "", ""},
		{"no marker trimmed", "  Parafuso sextavado  ", "Parafuso sextavado"},
		{"no marker keeps asterisks", "Item *especial*", "Item *especial*"},
		{"english then portuguese then english", "EN || Widget A PT || Caixa de som* EN || repeated", "Caixa de som"},
		{"stops at spanish", "PT || Válvula de esfera ES || Válvula de bola", "Válvula de esfera"},
		{"earliest stop wins", "PT || Bomba ES || Bomba EN || Pump", "Bomba"},
		{"marker at end", "EN || Gloves PT ||", ""},
		{"line breaks flattened", "EN || Belt\nPT || Correia\ntransportadora\r\nEN || Belt", "Correia transportadora"},
		{"only marker text", "PT || *Luva* de proteção", "Luva de proteção"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractPortuguese(tt.in))
		})
	}
}
