package photoprism

// Album represents a PhotoPrism album
type Album struct {
	UID         string `json:"UID"`
	Title       string `json:"Title"`
	Description string `json:"Description"`
	Favorite    bool   `json:"Favorite"`
	PhotoCount  int    `json:"PhotoCount"`
	Thumb       string `json:"Thumb"`
	Type        string `json:"Type"`
	CreatedAt   string `json:"CreatedAt"`
	UpdatedAt   string `json:"UpdatedAt"`
}

// Photo represents a PhotoPrism photo search result
type Photo struct {
	UID          string  `json:"UID"`
	Title        string  `json:"Title"`
	Description  string  `json:"Description"`
	TakenAt      string  `json:"TakenAt"`
	TakenAtLocal string  `json:"TakenAtLocal"`
	Favorite     bool    `json:"Favorite"`
	Private      bool    `json:"Private"`
	Type         string  `json:"Type"`
	Lat          float64 `json:"Lat"`
	Lng          float64 `json:"Lng"`
	Altitude     int     `json:"Altitude"`
	Caption      string  `json:"Caption"`
	Year         int     `json:"Year"`
	Month        int     `json:"Month"`
	Day          int     `json:"Day"`
	Country      string  `json:"Country"`
	Hash         string  `json:"Hash"` // Primary file hash, used for thumbnails and downloads
	Width        int     `json:"Width"`
	Height       int     `json:"Height"`
	OriginalName string  `json:"OriginalName"` // Original filename when uploaded
	FileName     string  `json:"FileName"`     // Current filename
	Name         string  `json:"Name"`         // Internal name
	Path         string  `json:"Path"`         // File path
	CameraModel  string  `json:"CameraModel"`  // Camera model name
	Scan         bool    `json:"Scan"`         // True if photo was scanned
}
