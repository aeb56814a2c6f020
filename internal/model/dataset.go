package model

// TrainingPairRecord is one labelled sentence pair stored under a dataset name.
type TrainingPairRecord struct {
	ID         int64   `json:"id"`
	Dataset    string  `json:"dataset"`
	Sentence1  string  `json:"sentence1"`
	Sentence2  string  `json:"sentence2"`
	Similarity float64 `json:"similarity"`
	Ctime      int64   `json:"ctime"`
}

type DatasetSummary struct {
	Name      string `json:"name"`
	PairCount int64  `json:"pair_count"`
	Mtime     int64  `json:"mtime"`
}
