package allocation

// SectorLookup maps tickers onto exposure sectors for the sector cap.
// The params file provides the production implementation; unknown tickers
// land in "unclassified" so the cap still covers them.
type SectorLookup interface {
	Sector(ticker string) string
}

// SectorMap is a static SectorLookup, useful for tests and fixed universes.
type SectorMap map[string]string

// Sector returns the mapped sector or "unclassified".
func (m SectorMap) Sector(ticker string) string {
	if s, ok := m[ticker]; ok && s != "" {
		return s
	}
	return "unclassified"
}
