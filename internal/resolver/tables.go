package resolver

type entry struct {
	key  string
	city string
}

// districts maps neighbourhoods to their parent city. The substring scan in
// Resolve walks this slice front to back and the first hit wins, so order is
// part of the contract: keep new entries grouped by city and append rather
// than insert.
var districts = []entry{
	{"shibuya", "Tokyo"},
	{"shinjuku", "Tokyo"},
	{"harajuku", "Tokyo"},
	{"akihabara", "Tokyo"},
	{"ginza", "Tokyo"},
	{"roppongi", "Tokyo"},
	{"ikebukuro", "Tokyo"},
	{"asakusa", "Tokyo"},
	{"ueno", "Tokyo"},
	{"omotesando", "Tokyo"},
	{"aoyama", "Tokyo"},
	{"ebisu", "Tokyo"},
	{"daikanyama", "Tokyo"},
	{"meguro", "Tokyo"},
	{"setagaya", "Tokyo"},
	{"shibuya-ku", "Tokyo"},
	{"shinjuku-ku", "Tokyo"},

	{"渋谷", "Tokyo"},
	{"新宿", "Tokyo"},
	{"原宿", "Tokyo"},
	{"秋葉原", "Tokyo"},
	{"銀座", "Tokyo"},
	{"六本木", "Tokyo"},
	{"池袋", "Tokyo"},
	{"浅草", "Tokyo"},
	{"上野", "Tokyo"},
	{"表参道", "Tokyo"},
	{"青山", "Tokyo"},
	{"恵比寿", "Tokyo"},
	{"代官山", "Tokyo"},
	{"目黒", "Tokyo"},
	{"世田谷", "Tokyo"},

	{"namba", "Osaka"},
	{"dotonbori", "Osaka"},
	{"shinsaibashi", "Osaka"},
	{"umeda", "Osaka"},
	{"tennoji", "Osaka"},
	{"難波", "Osaka"},
	{"道頓堀", "Osaka"},
	{"心斎橋", "Osaka"},
	{"梅田", "Osaka"},
	{"天王寺", "Osaka"},

	{"gion", "Kyoto"},
	{"arashiyama", "Kyoto"},
	{"fushimi", "Kyoto"},
	{"祇園", "Kyoto"},
	{"嵐山", "Kyoto"},
	{"伏見", "Kyoto"},
}

// localizedCities maps native-script city names to canonical names. Scanned
// in order for the substring step, so 東京 precedes 京都 (東京都 contains 京都).
var localizedCities = []entry{
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
}

// commonCities is the last-resort ASCII token scan.
var commonCities = []string{
	"tokyo", "osaka", "kyoto", "yokohama", "sapporo",
	"fukuoka", "hiroshima", "sendai", "nagoya", "kobe",
	"chiba", "saitama", "niigata", "shizuoka", "okayama",
}

var (
	districtIndex  = indexOf(districts)
	localizedIndex = indexOf(localizedCities)
)

func indexOf(entries []entry) map[string]string {
	m := make(map[string]string, len(entries))
	for _, e := range entries {
		if _, dup := m[e.key]; !dup {
			m[e.key] = e.city
		}
	}
	return m
}
