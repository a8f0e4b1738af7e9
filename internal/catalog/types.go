package catalog

// Movie is movie metadata from the catalog provider.
type Movie struct {
	ID          int64  `json:"id"`
	Title       string `json:"title"`
	ReleaseDate string `json:"release_date"`
	Overview    string `json:"overview"`
	Runtime     int    `json:"runtime"`
	VoteAverage float64 `json:"vote_average"`
}

// Year returns the release year, or 0 when unknown.
func (m *Movie) Year() int {
	return yearOf(m.ReleaseDate)
}

// TVSeason is one season's metadata inside a TV response.
type TVSeason struct {
	SeasonNumber int `json:"season_number"`
	EpisodeCount int `json:"episode_count"`
}

// TV is series metadata from the catalog provider.
type TV struct {
	ID           int64      `json:"id"`
	Name         string     `json:"name"`
	FirstAirDate string     `json:"first_air_date"`
	Overview     string     `json:"overview"`
	Seasons      []TVSeason `json:"seasons"`
	VoteAverage  float64    `json:"vote_average"`
}

// Year returns the first-air year, or 0 when unknown.
func (t *TV) Year() int {
	return yearOf(t.FirstAirDate)
}

// ExternalIDs cross-references one catalog's id space with others.
type ExternalIDs struct {
	TVDBID int64  `json:"tvdb_id"`
	IMDBID string `json:"imdb_id"`
}

// Ratings is the secondary rating lookup, cached on a short TTL.
type Ratings struct {
	VoteAverage float64 `json:"vote_average"`
	VoteCount   int64   `json:"vote_count"`
}

type searchResult[T any] struct {
	Results []T `json:"results"`
}

func yearOf(date string) int {
	if len(date) < 4 {
		return 0
	}
	year := 0
	for _, r := range date[:4] {
		if r < '0' || r > '9' {
			return 0
		}
		year = year*10 + int(r-'0')
	}
	return year
}
