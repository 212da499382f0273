package catalog

// Track is a selectable musical key and the pad asset that sustains it.
type Track struct {
	Key   string `json:"key"`   // pitch class, sharps spelled with '#'
	Label string `json:"label"` // solfège display label
	File  string `json:"file"`  // asset file name inside the asset directory
}

// Tracks lists one pad per pitch class in chromatic order starting at C.
// Sharps use the flat spelling of the shipped asset files.
var Tracks = []Track{
	{Key: "C", Label: "Dó", File: "C.mp3"},
	{Key: "C#", Label: "Dó#", File: "Db.mp3"},
	{Key: "D", Label: "Ré", File: "D.mp3"},
	{Key: "D#", Label: "Ré#", File: "Eb.mp3"},
	{Key: "E", Label: "Mi", File: "E.mp3"},
	{Key: "F", Label: "Fá", File: "F.mp3"},
	{Key: "F#", Label: "Fá#", File: "Gb.mp3"},
	{Key: "G", Label: "Sol", File: "G.mp3"},
	{Key: "G#", Label: "Sol#", File: "Ab.mp3"},
	{Key: "A", Label: "Lá", File: "A.mp3"},
	{Key: "A#", Label: "Lá#", File: "Bb.mp3"},
	{Key: "B", Label: "Si", File: "B.mp3"},
}

// flats maps the enharmonic flat spellings onto catalog keys.
var flats = map[string]string{
	"Db": "C#",
	"Eb": "D#",
	"Gb": "F#",
	"Ab": "G#",
	"Bb": "A#",
}

// Lookup finds a track by key. Matching is case sensitive; flat spellings
// such as "Bb" resolve to their sharp entry.
func Lookup(key string) (Track, bool) {
	if k, ok := flats[key]; ok {
		key = k
	}
	for _, t := range Tracks {
		if t.Key == key {
			return t, true
		}
	}
	return Track{}, false
}

// Keys returns all catalog keys in chromatic order.
func Keys() []string {
	keys := make([]string, 0, len(Tracks))
	for _, t := range Tracks {
		keys = append(keys, t.Key)
	}
	return keys
}

// IsValidKey checks if a key (or its flat alias) exists in the catalog.
func IsValidKey(key string) bool {
	_, ok := Lookup(key)
	return ok
}
