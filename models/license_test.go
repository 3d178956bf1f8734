package models

import (
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLicenseIsValid(t *testing.T) {
	future := time.Now().Add(24 * time.Hour)
	past := time.Now().Add(-24 * time.Hour)

	cases := []struct {
		name    string
		license License
		want    bool
	}{
		{"active without expiry", License{IsActive: true}, true},
		{"active not yet expired", License{IsActive: true, ExpiresAt: &future}, true},
		{"active but expired", License{IsActive: true, ExpiresAt: &past}, false},
		{"inactive", License{IsActive: false}, false},
		{"inactive with future expiry", License{IsActive: false, ExpiresAt: &future}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, tc.license.IsValid())
		})
	}
}

func TestEffectiveFeaturesMerge(t *testing.T) {
	license := License{
		IsActive: true,
		Features: []string{"articles", "shejire"},
		LicenseFeatures: []LicenseFeature{
			{FeatureKey: "export", Enabled: true},
			{FeatureKey: "import", Enabled: false},
			{FeatureKey: "shejire", Enabled: true},
		},
	}

	set := license.EffectiveFeatures()
	assert.Contains(t, set, "articles")
	assert.Contains(t, set, "shejire")
	assert.Contains(t, set, "export")
	assert.NotContains(t, set, "import")
	assert.Len(t, set, 3)
}

func TestEffectiveFeaturesMonotonic(t *testing.T) {
	// Adding an enabled feature row never removes anything from the set.
	base := License{IsActive: true, Features: []string{"articles"}}
	enriched := base
	enriched.LicenseFeatures = []LicenseFeature{{FeatureKey: "export", Enabled: true}}

	for key := range base.EffectiveFeatures() {
		assert.Contains(t, enriched.EffectiveFeatures(), key)
	}
}

func TestHasFeatureRequiresValidity(t *testing.T) {
	license := License{
		IsActive: false,
		Features: []string{"articles"},
	}
	assert.False(t, license.HasFeature("articles"))

	license.IsActive = true
	assert.True(t, license.HasFeature("articles"))
	assert.False(t, license.HasFeature("export"))
}

func TestGenerateLicenseKeyFormat(t *testing.T) {
	pattern := regexp.MustCompile(`^[0-9A-F]{8}-[0-9A-F]{8}-[0-9A-F]{8}-[0-9A-F]{8}$`)

	seen := map[string]bool{}
	for i := 0; i < 50; i++ {
		key := GenerateLicenseKey()
		assert.Regexp(t, pattern, key)
		assert.False(t, seen[key], "duplicate key %s", key)
		seen[key] = true
	}
}
