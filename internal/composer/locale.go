package composer

import (
	"fmt"
	"strings"
)

// Locale holds the monthly message phrasing for one language.
type Locale struct {
	Name string
	// Headline takes the asset symbol and the month label.
	Headline     string
	CurrentPrice string
	Recovered    string
	NotRecovered string
	Ordinals     []string
	// Fallback formats month counts beyond the ordinal table.
	Fallback string
}

// Ordinal returns the label for the n-th month.
func (l Locale) Ordinal(n int) string {
	if n >= 1 && n <= len(l.Ordinals) {
		return l.Ordinals[n-1]
	}
	return fmt.Sprintf(l.Fallback, n)
}

var locales = map[string]Locale{
	"ar": {
		Name:         "ar",
		Headline:     "مبروك يا شباب بقالكم عاملين هولد لـ $%s %s",
		CurrentPrice: "السعر دلوقتي %s$",
		Recovered:    "والحمد لله رجعنا فوق %s$ 🎉\n",
		NotRecovered: "ولسه مرجعناش لسعر %s$\n",
		Ordinals: []string{
			"الشهر الأول",
			"الشهر الثاني",
			"الشهر الثالث",
			"الشهر الرابع",
			"الشهر الخامس",
			"الشهر السادس",
			"الشهر السابع",
			"الشهر الثامن",
			"الشهر التاسع",
			"الشهر العاشر",
		},
		Fallback: "%d شهر",
	},
	"en": {
		Name:         "en",
		Headline:     "Congrats, you have been holding $%s for %s",
		CurrentPrice: "Price now %s$",
		Recovered:    "Recovered: back above %s$ 🎉\n",
		NotRecovered: "Not recovered yet: still below %s$\n",
		Ordinals: []string{
			"the first month",
			"the second month",
			"the third month",
			"the fourth month",
			"the fifth month",
			"the sixth month",
			"the seventh month",
			"the eighth month",
			"the ninth month",
			"the tenth month",
		},
		Fallback: "%d months",
	},
}

// LookupLocale returns the named locale, defaulting to Arabic.
func LookupLocale(name string) Locale {
	if l, ok := locales[strings.ToLower(strings.TrimSpace(name))]; ok {
		return l
	}
	return locales["ar"]
}
