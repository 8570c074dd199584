package autoreply

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wagate/pkg/clients/rajaongkir"
)

func TestParseShippingQueryFull(t *testing.T) {
	query, ok := ParseShippingQuery("cek ongkir dari jakarta ke bandung 2kg jne")
	require.True(t, ok)
	assert.Equal(t, "jakarta", query.Origin)
	assert.Equal(t, "bandung", query.Destination)
	assert.Equal(t, 2000, query.WeightGrams)
	assert.Equal(t, "jne", query.Courier)
}

func TestParseShippingQueryDefaults(t *testing.T) {
	query, ok := ParseShippingQuery("cek ongkir surabaya ke medan")
	require.True(t, ok)
	assert.Equal(t, "surabaya", query.Origin)
	assert.Equal(t, "medan", query.Destination)
	assert.Equal(t, 1000, query.WeightGrams, "weight defaults to 1 kg")
	assert.Equal(t, "jne", query.Courier, "courier defaults to jne")
}

func TestParseShippingQueryFractionalWeight(t *testing.T) {
	query, ok := ParseShippingQuery("Cek Ongkir Jakarta ke Bandung 1,5kg sicepat")
	require.True(t, ok)
	assert.Equal(t, 1500, query.WeightGrams)
	assert.Equal(t, "sicepat", query.Courier)
}

func TestParseShippingQueryMultiWordCities(t *testing.T) {
	query, ok := ParseShippingQuery("cek ongkir tangerang selatan ke bandar lampung 3kg")
	require.True(t, ok)
	assert.Equal(t, "tangerang selatan", query.Origin)
	assert.Equal(t, "bandar lampung", query.Destination)
	assert.Equal(t, 3000, query.WeightGrams)
}

func TestParseShippingQueryRejectsOtherText(t *testing.T) {
	for _, text := range []string{"halo", "berapa ongkir?", "cek ongkir jakarta"} {
		_, ok := ParseShippingQuery(text)
		assert.False(t, ok, "%q must not parse", text)
	}
}

func TestFormatShippingReply(t *testing.T) {
	query := ShippingQuery{Origin: "jakarta", Destination: "bandung", WeightGrams: 1500, Courier: "jne"}
	result := rajaongkir.CostResult{
		Courier: "JNE",
		Services: []rajaongkir.CostService{
			{Service: "REG", Description: "Layanan Reguler", Cost: 18000, ETA: "2-3"},
			{Service: "YES", Description: "Yakin Esok Sampai", Cost: 30000, ETA: "1-1"},
		},
	}

	reply := FormatShippingReply(query, result)
	assert.Contains(t, reply, "Dari: jakarta")
	assert.Contains(t, reply, "Ke: bandung")
	assert.Contains(t, reply, "Berat: 1.5 kg")
	assert.Contains(t, reply, "Kurir: JNE")
	assert.Contains(t, reply, "*REG* (Layanan Reguler)")
	assert.Contains(t, reply, "Rp18.000")
	assert.Contains(t, reply, "Rp30.000")
}

func TestFormatRupiah(t *testing.T) {
	assert.Equal(t, "500", formatRupiah(500))
	assert.Equal(t, "18.000", formatRupiah(18000))
	assert.Equal(t, "1.250.000", formatRupiah(1250000))
}
