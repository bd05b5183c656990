package analyzer

// Tunables holds every threshold used by the heuristics. The defaults are
// product tunables carried over from the dashboard; none of them have a
// statistical basis.
type Tunables struct {
	// PositiveMinScore is the lowest score counted as positive (1-5 scale).
	PositiveMinScore int
	// NegativeMaxScore is the highest score counted as negative.
	NegativeMaxScore int

	// MinKeywordMentions is the minimum occurrences for a keyword to become a topic.
	MinKeywordMentions int
	// MaxTopicsPerBucket caps the topics kept per sentiment bucket.
	MaxTopicsPerBucket int
	// MaxTopTopics caps the merged topic ranking.
	MaxTopTopics int
	// MaxStrengths caps strengths and weaknesses.
	MaxStrengths int

	// ShortReplyMaxChars: mean response length below this is "short".
	ShortReplyMaxChars int
	// LongReplyMinChars: mean response length above this is "long".
	LongReplyMinChars int
	// EmojiRatio: responses with emoji above this fraction set UsesEmoji.
	EmojiRatio float64
	// FormalitySeed is the starting formality level before lexicon hits.
	FormalitySeed int
	// ProfessionalMinFormality and FriendlyMinFormality derive the tone label.
	ProfessionalMinFormality int
	FriendlyMinFormality     int

	// MinRespondedForPhrases skips signature phrases below this many replies.
	MinRespondedForPhrases int
	// MaxPhraseChars ignores longer first/last sentences.
	MaxPhraseChars int
	// MinPhraseRepeats is the minimum occurrences for a signature phrase.
	MinPhraseRepeats int
	// MaxPhrases caps signature phrases.
	MaxPhrases int

	// MinTimedRecords skips timing analysis below this many timestamped records.
	MinTimedRecords int
	// MaxPeakDays and MaxBestTimes cap the timing signals.
	MaxPeakDays  int
	MaxBestTimes int

	// TrendWindowDays is the size of each window compared for growth trend.
	TrendWindowDays int
	// TrendThreshold is the relative change that counts as growing/declining.
	TrendThreshold float64
	// TrendMinRecent is the minimum recent volume to call growth from nothing.
	TrendMinRecent int

	// Keywords is the fixed domain vocabulary topics are matched against.
	Keywords []string
	// FormalMarkers and InformalMarkers are the formality lexicons.
	FormalMarkers   []string
	InformalMarkers []string
}

// DefaultTunables returns the production thresholds.
func DefaultTunables() Tunables {
	return Tunables{
		PositiveMinScore:         4,
		NegativeMaxScore:         2,
		MinKeywordMentions:       2,
		MaxTopicsPerBucket:       10,
		MaxTopTopics:             10,
		MaxStrengths:             5,
		ShortReplyMaxChars:       100,
		LongReplyMinChars:        300,
		EmojiRatio:               0.3,
		FormalitySeed:            5,
		ProfessionalMinFormality: 7,
		FriendlyMinFormality:     4,
		MinRespondedForPhrases:   3,
		MaxPhraseChars:           100,
		MinPhraseRepeats:         2,
		MaxPhrases:               5,
		MinTimedRecords:          5,
		MaxPeakDays:              3,
		MaxBestTimes:             5,
		TrendWindowDays:          30,
		TrendThreshold:           0.10,
		TrendMinRecent:           5,
		Keywords:                 defaultKeywords,
		FormalMarkers:            defaultFormalMarkers,
		InformalMarkers:          defaultInformalMarkers,
	}
}

// defaultKeywords covers the hospitality/retail vocabulary the dashboard
// targets, in English and Spanish.
var defaultKeywords = []string{
	// service
	"service", "staff", "attention", "friendly", "rude", "waiter", "manager",
	"servicio", "atencion", "personal", "amable",
	// product
	"food", "quality", "taste", "fresh", "delicious", "portion", "menu", "coffee",
	"comida", "calidad", "sabor", "fresco", "delicioso",
	// price
	"price", "prices", "expensive", "cheap", "value",
	"precio", "precios", "caro", "barato",
	// time
	"wait", "slow", "fast", "quick", "late", "delay",
	"espera", "lento", "rapido", "tarde",
	// place
	"clean", "dirty", "atmosphere", "music", "parking", "location", "noise",
	"limpio", "sucio", "ambiente", "ubicacion", "estacionamiento",
	// fulfilment
	"delivery", "order", "reservation", "booking",
	"entrega", "pedido", "reserva",
}

var defaultFormalMarkers = []string{
	"thank you", "we appreciate", "sincerely", "regards", "please", "apologize",
	"we regret", "kindly", "estimado", "estimada", "agradecemos", "cordialmente",
	"lamentamos", "usted",
}

var defaultInformalMarkers = []string{
	"hey", "lol", "awesome", "cool", "thx", "yay", "!!", "haha", "jaja",
	"genial", "super", "buenísimo", "xd",
}
