package catalog

import (
	"strings"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/google/go-github/v57/github"
)

// Release is one published release. Values are never mutated after a fetch.
type Release struct {
	Tag         string
	Name        string
	Body        string
	PublishedAt time.Time
	Prerelease  bool

	// Version is the tag parsed as a semantic version, nil when the tag is
	// not semver.
	Version *semver.Version

	Assets []Asset
}

// DisplayName is the release name, falling back to the tag.
func (r Release) DisplayName() string {
	if strings.TrimSpace(r.Name) != "" {
		return r.Name
	}
	return r.Tag
}

// IsPrerelease is true when the provider flags the release or the tag carries a
// semver prerelease suffix.
func (r Release) IsPrerelease() bool {
	if r.Prerelease {
		return true
	}
	return r.Version != nil && r.Version.Prerelease() != ""
}

// Asset is a downloadable file attached to a release.
type Asset struct {
	ID          int64
	Name        string
	Size        int64
	ContentType string

	// ContentURL is the API URL of the asset; fetching it with
	// "Accept: application/octet-stream" yields the bytes.
	ContentURL string

	// ReleaseTag refers back to the owning release.
	ReleaseTag string
}

// HasSuffix reports whether the asset name ends with any of suffixes,
// ignoring case. An empty list matches everything.
func (a Asset) HasSuffix(suffixes []string) bool {
	if len(suffixes) == 0 {
		return true
	}
	name := strings.ToLower(a.Name)
	for _, s := range suffixes {
		if strings.HasSuffix(name, strings.ToLower(s)) {
			return true
		}
	}
	return false
}

func releaseFromGitHub(r *github.RepositoryRelease) Release {
	rel := Release{
		Tag:        r.GetTagName(),
		Name:       r.GetName(),
		Body:       r.GetBody(),
		Prerelease: r.GetPrerelease(),
	}
	if r.PublishedAt != nil {
		rel.PublishedAt = r.PublishedAt.Time
	}
	if v, err := semver.NewVersion(rel.Tag); err == nil {
		rel.Version = v
	}

	rel.Assets = make([]Asset, 0, len(r.Assets))
	for _, a := range r.Assets {
		rel.Assets = append(rel.Assets, Asset{
			ID:          a.GetID(),
			Name:        a.GetName(),
			Size:        int64(a.GetSize()),
			ContentType: a.GetContentType(),
			ContentURL:  a.GetURL(),
			ReleaseTag:  rel.Tag,
		})
	}
	return rel
}
