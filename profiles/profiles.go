// Package profiles defines named volume geometries that tools can format
// with, so image sizes stay consistent across a fleet of callers.
package profiles

import (
	_ "embed"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/gocarina/gocsv"

	"github.com/dperrone/flatfs"
)

type Profile struct {
	Name        string `csv:"name"`
	Slug        string `csv:"slug"`
	BlockSize   uint   `csv:"block_size"`
	TotalBlocks uint   `csv:"total_blocks"`
	MaxFiles    uint   `csv:"max_files"`
	Notes       string `csv:"notes"`
}

// Geometry converts the profile into the engine's capacity constants.
func (p Profile) Geometry() flatfs.Geometry {
	return flatfs.Geometry{
		BlockSize:   p.BlockSize,
		TotalBlocks: p.TotalBlocks,
		MaxFiles:    p.MaxFiles,
	}
}

// TotalSizeBytes gives the size of an image formatted with this profile.
func (p Profile) TotalSizeBytes() int64 {
	return p.Geometry().SizeBytes()
}

//go:embed profiles.csv
var profilesRawCSV string
var profiles = map[string]Profile{}

// Get returns the predefined profile with the given slug.
func Get(slug string) (Profile, error) {
	profile, ok := profiles[slug]
	if ok {
		return profile, nil
	}
	return Profile{}, fmt.Errorf("no predefined volume profile exists with slug %q", slug)
}

// Slugs lists all predefined profile slugs in sorted order.
func Slugs() []string {
	slugs := make([]string, 0, len(profiles))
	for slug := range profiles {
		slugs = append(slugs, slug)
	}
	sort.Strings(slugs)
	return slugs
}

func init() {
	reader := strings.NewReader(profilesRawCSV)
	err := gocsv.UnmarshalToCallback(
		reader,
		func(row Profile) error {
			_, exists := profiles[row.Slug]
			if exists {
				return fmt.Errorf(
					"duplicate definition for profile %q found on row %d",
					row.Slug,
					len(profiles)+1,
				)
			}
			if err := row.Geometry().Validate(); err != nil {
				return fmt.Errorf("profile %q is not formattable: %w", row.Slug, err)
			}
			profiles[row.Slug] = row
			return nil
		},
	)
	if err != nil && err != io.EOF {
		panic(err)
	}
}
