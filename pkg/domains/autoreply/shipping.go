package autoreply

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/wagate/pkg/clients/rajaongkir"
)

// ShippingQuery is a parsed "cek ongkir" command.
type ShippingQuery struct {
	Origin      string
	Destination string
	WeightGrams int
	Courier     string
}

const defaultCourier = "jne"

var shippingPattern = regexp.MustCompile(
	`(?i)^\s*cek\s+ongkir\s+(?:dari\s+)?(.+?)\s+ke\s+(.+?)(?:\s+(\d+(?:[.,]\d+)?)\s*kg)?(?:\s+(jne|pos|tiki|jnt|sicepat|anteraja))?\s*$`)

// ParseShippingQuery recognizes `cek ongkir [dari] <origin> ke <dest>
// [<weight>kg] [<courier>]`. Weight defaults to 1 kg, courier to jne;
// weights are normalized to grams.
func ParseShippingQuery(text string) (ShippingQuery, bool) {
	m := shippingPattern.FindStringSubmatch(text)
	if m == nil {
		return ShippingQuery{}, false
	}

	query := ShippingQuery{
		Origin:      strings.TrimSpace(m[1]),
		Destination: strings.TrimSpace(m[2]),
		WeightGrams: 1000,
		Courier:     defaultCourier,
	}
	if m[3] != "" {
		kg, err := strconv.ParseFloat(strings.ReplaceAll(m[3], ",", "."), 64)
		if err == nil && kg > 0 {
			query.WeightGrams = int(kg * 1000)
		}
	}
	if m[4] != "" {
		query.Courier = strings.ToLower(m[4])
	}

	return query, true
}

// FormatShippingReply renders the quote as a chat message: header with
// the normalized inputs, one block per service tier.
func FormatShippingReply(query ShippingQuery, result rajaongkir.CostResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "📦 *Cek Ongkir*\n")
	fmt.Fprintf(&b, "Dari: %s\n", query.Origin)
	fmt.Fprintf(&b, "Ke: %s\n", query.Destination)
	fmt.Fprintf(&b, "Berat: %.1f kg\n", float64(query.WeightGrams)/1000)
	fmt.Fprintf(&b, "Kurir: %s\n", strings.ToUpper(query.Courier))

	for _, svc := range result.Services {
		fmt.Fprintf(&b, "\n*%s* (%s)\n", svc.Service, svc.Description)
		fmt.Fprintf(&b, "Tarif: Rp%s\n", formatRupiah(svc.Cost))
		if svc.ETA != "" {
			fmt.Fprintf(&b, "Estimasi: %s hari\n", strings.ReplaceAll(svc.ETA, "HARI", "hari"))
		}
	}

	return strings.TrimRight(b.String(), "\n")
}

// ShippingHelpReply is the canonical fallback for any shipping lookup
// problem.
const ShippingHelpReply = "Maaf, saya tidak bisa mengecek ongkir saat ini 🙏\n" +
	"Format: cek ongkir <kota asal> ke <kota tujuan> [berat]kg [kurir]\n" +
	"Contoh: cek ongkir jakarta ke bandung 2kg jne"

func formatRupiah(value int64) string {
	digits := strconv.FormatInt(value, 10)
	var b strings.Builder
	for i, ch := range digits {
		if i > 0 && (len(digits)-i)%3 == 0 {
			b.WriteByte('.')
		}
		b.WriteRune(ch)
	}
	return b.String()
}
