package tone

import (
	"strings"
	"testing"
)

func TestTagsFor_KnownLabels(t *testing.T) {
	tags := TagsFor(ToneDirect, VerbosityConcise)
	set := toSet(tags)
	for _, want := range []string{"concise", "direct_coach", "bullet_points", "no_emojis"} {
		if !set[want] {
			t.Errorf("expected tag %q in %v", want, tags)
		}
	}
	for _, tag := range tags {
		if !AllTags[tag] {
			t.Errorf("unexpected tag outside whitelist: %q", tag)
		}
	}
}

func TestTagsFor_UnknownLabelsUseDefaults(t *testing.T) {
	got := TagsFor("sarcástico", "infinito")
	want := TagsFor(DefaultTone, DefaultVerbosity)
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("expected defaults %v, got %v", want, got)
	}
}

func TestTagsFor_MutualExclusion(t *testing.T) {
	for _, tn := range ToneOptions {
		for _, vb := range VerbosityOptions {
			set := toSet(TagsFor(tn, vb))
			for _, pair := range mutuallyExclusivePairs {
				if set[pair[0]] && set[pair[1]] {
					t.Errorf("tone=%q verbosity=%q: both %q and %q active", tn, vb, pair[0], pair[1])
				}
			}
		}
	}
}

func TestEnforceExclusion_KeepsEarlierTag(t *testing.T) {
	got := enforceExclusion([]string{"detailed", "formal", "concise"})
	set := toSet(got)
	if !set["detailed"] || set["concise"] {
		t.Errorf("expected detailed kept and concise dropped, got %v", got)
	}
}

func TestBuildToneGuide(t *testing.T) {
	if BuildToneGuide(nil) != "" {
		t.Error("expected empty guide for no tags")
	}
	guide := BuildToneGuide([]string{"concise", "no_emojis"})
	if !strings.Contains(guide, "conciso") || !strings.Contains(guide, "emojis") {
		t.Errorf("guide missing style rules: %q", guide)
	}
	if !strings.Contains(guide, "neutra e profissional") {
		t.Errorf("expected default stance when none selected: %q", guide)
	}
}

func toSet(tags []string) map[string]bool {
	m := make(map[string]bool, len(tags))
	for _, t := range tags {
		m[t] = true
	}
	return m
}
