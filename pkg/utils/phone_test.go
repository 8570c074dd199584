package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizePhone(t *testing.T) {
	assert.Equal(t, "628123456789", NormalizePhone("0812-3456-789"))
	assert.Equal(t, "628123456789", NormalizePhone("+628123456789"))
	assert.Equal(t, "628123456789", NormalizePhone("62 812 3456 789"))
	assert.Equal(t, "", NormalizePhone("abc"))
}

func TestNormalizePhoneIdempotent(t *testing.T) {
	inputs := []string{"081234567890", "+62 812-3456-7890", "628111111111", "1-555-0100"}
	for _, in := range inputs {
		once := NormalizePhone(in)
		assert.Equal(t, once, NormalizePhone(once), "normalize must be idempotent for %q", in)
	}
}

func TestRenderTemplate(t *testing.T) {
	out := RenderTemplate("Halo {{name}}, nomor {{phone}}", map[string]string{
		"name":  "Budi",
		"phone": "62812",
	})
	assert.Equal(t, "Halo Budi, nomor 62812", out)
}

func TestRenderTemplateIdentityWithoutVariables(t *testing.T) {
	tpl := "Promo spesial minggu ini, cek katalog kami!"
	assert.Equal(t, tpl, RenderTemplate(tpl, map[string]string{"name": "Budi"}))
}

func TestRenderTemplateUnknownVariable(t *testing.T) {
	assert.Equal(t, "Halo ", RenderTemplate("Halo {{missing}}", nil))
}
