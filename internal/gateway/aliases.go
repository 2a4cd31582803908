package gateway

import "strings"

// aliases maps localized and lower-case city names to the English name the
// provider resolves most reliably. Built once at init; read-only afterwards.
var aliases = buildAliases([]struct{ local, english string }{
	{"東京", "Tokyo"},
	{"大阪", "Osaka"},
	{"京都", "Kyoto"},
	{"横浜", "Yokohama"},
	{"札幌", "Sapporo"},
	{"福岡", "Fukuoka"},
	{"広島", "Hiroshima"},
	{"仙台", "Sendai"},
	{"名古屋", "Nagoya"},
	{"神戸", "Kobe"},
	{"千葉", "Chiba"},
	{"埼玉", "Saitama"},
	{"新潟", "Niigata"},
	{"静岡", "Shizuoka"},
	{"岡山", "Okayama"},
	{"熊本", "Kumamoto"},
	{"鹿児島", "Kagoshima"},
	{"長崎", "Nagasaki"},
	{"青森", "Aomori"},
	{"盛岡", "Morioka"},
})

func buildAliases(pairs []struct{ local, english string }) map[string]string {
	m := make(map[string]string, 2*len(pairs))
	for _, p := range pairs {
		m[p.local] = p.english
		m[strings.ToLower(p.english)] = p.english
	}
	return m
}

// canonicalName maps name through the alias table: exact, then lower-cased,
// else the trimmed name unchanged.
func canonicalName(name string) string {
	key := strings.TrimSpace(name)
	if english, ok := aliases[key]; ok {
		return english
	}
	if english, ok := aliases[strings.ToLower(key)]; ok {
		return english
	}
	return key
}
