package similarity

func wordSet(words ...string) map[string]struct{} {
	out := make(map[string]struct{}, len(words))
	for _, w := range words {
		out[w] = struct{}{}
	}
	return out
}

var negationMarkers = wordSet(
	"not", "no", "never", "none", "nothing", "nobody", "nowhere", "neither",
	"nor", "cannot", "without", "hardly", "barely", "scarcely", "lack", "lacks",
)

var negativePrefixes = []string{"un", "dis", "non", "im", "ir", "il"}

var prefixExceptions = wordSet(
	"under", "understand", "understood", "until", "universe", "universal", "university",
	"unit", "united", "unity", "unique", "union", "uniform", "unicorn", "unless",
	"discuss", "discussion", "discover", "discovery", "distance", "distant", "display",
	"distribute", "district", "dish", "disk", "disc",
	"image", "imagine", "imagination", "import", "important", "importance", "improve",
	"impact", "impress", "impression", "immediate", "immediately", "implement",
	"iron", "irish", "illustrate", "illustration", "illness",
	"none", "nonetheless",
)

var contrastWords = wordSet(
	"but", "however", "although", "though", "yet", "whereas", "instead",
	"despite", "unlike", "rather", "nevertheless", "nonetheless", "conversely",
)

var positiveWords = wordSet(
	"good", "great", "excellent", "amazing", "wonderful", "fantastic", "awesome",
	"love", "loved", "like", "liked", "happy", "glad", "nice", "best", "better",
	"perfect", "positive", "pleasant", "beautiful", "enjoy", "enjoyed", "success",
	"successful", "easy", "helpful", "brilliant", "delightful", "superb",
)

var negativeWords = wordSet(
	"bad", "terrible", "awful", "horrible", "poor", "worst", "worse", "hate",
	"hated", "dislike", "sad", "unhappy", "angry", "negative", "ugly", "fail",
	"failed", "failure", "difficult", "hard", "broken", "useless", "disappointing",
	"disappointed", "annoying", "painful", "boring", "wrong",
)

var intensifiers = wordSet(
	"very", "extremely", "really", "so", "too", "highly", "incredibly",
	"absolutely", "totally", "quite", "truly", "super", "completely",
)

// topicGroups are keyword sets used to spot texts about the same subject.
var topicGroups = map[string][]string{
	"weather":    {"weather", "rain", "raining", "sunny", "sun", "cloud", "cloudy", "storm", "snow", "wind", "cold", "hot", "temperature"},
	"finance":    {"money", "bank", "price", "cost", "costs", "pay", "paid", "expensive", "cheap", "budget", "salary", "dollars"},
	"health":     {"sick", "ill", "doctor", "hospital", "medicine", "health", "healthy", "pain", "fever", "disease"},
	"technology": {"computer", "software", "code", "program", "internet", "phone", "app", "server", "data", "network"},
	"food":       {"food", "eat", "eating", "ate", "meal", "dinner", "lunch", "breakfast", "cook", "restaurant", "hungry"},
	"travel":     {"travel", "trip", "flight", "airport", "hotel", "vacation", "journey", "train", "drive", "road"},
	"emotion":    {"happy", "sad", "angry", "joy", "fear", "love", "upset", "excited", "worried", "feel", "feeling"},
	"work":       {"work", "job", "office", "boss", "meeting", "project", "deadline", "career", "colleague", "task"},
	"education":  {"school", "study", "student", "teacher", "learn", "learning", "exam", "class", "university", "homework"},
	"sports":     {"game", "team", "play", "player", "score", "match", "win", "won", "lose", "lost", "ball"},
	"time":       {"today", "tomorrow", "yesterday", "morning", "evening", "night", "week", "hour", "late", "early"},
}

var causeFirstMarkers = []string{"because", "since", "due to", "caused by", "owing to", "as a result of", "thanks to"}

var effectFirstMarkers = []string{"therefore", "so", "thus", "consequently", "as a result", "leads to", "led to", "results in", "resulted in", "hence"}

type paraphrasePair struct {
	figurative string
	literal    []string
}

var paraphrasePairs = []paraphrasePair{
	{figurative: "raining cats and dogs", literal: []string{"raining heavily", "heavy rain", "raining hard", "pouring"}},
	{figurative: "piece of cake", literal: []string{"easy", "simple", "effortless"}},
	{figurative: "under the weather", literal: []string{"sick", "ill", "unwell", "not feeling well"}},
	{figurative: "break a leg", literal: []string{"good luck"}},
	{figurative: "hit the sack", literal: []string{"go to sleep", "go to bed", "sleep"}},
	{figurative: "hit the hay", literal: []string{"go to sleep", "go to bed", "sleep"}},
	{figurative: "cost an arm and a leg", literal: []string{"expensive", "very costly", "costs a lot"}},
	{figurative: "on cloud nine", literal: []string{"very happy", "happy", "thrilled", "delighted"}},
	{figurative: "spill the beans", literal: []string{"reveal the secret", "tell the secret", "reveal"}},
	{figurative: "once in a blue moon", literal: []string{"rarely", "seldom", "almost never"}},
	{figurative: "kick the bucket", literal: []string{"die", "died", "pass away", "passed away"}},
	{figurative: "bite the bullet", literal: []string{"endure", "face it", "accept the pain"}},
	{figurative: "feeling blue", literal: []string{"sad", "feeling sad", "depressed"}},
	{figurative: "beat around the bush", literal: []string{"avoid the topic", "evasive", "not direct"}},
	{figurative: "let the cat out of the bag", literal: []string{"reveal the secret", "revealed the secret", "reveal"}},
	{figurative: "hit the books", literal: []string{"study", "studying"}},
	{figurative: "burn the midnight oil", literal: []string{"work late", "stay up late", "working late"}},
}
