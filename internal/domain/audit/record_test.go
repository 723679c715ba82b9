package audit

import (
	"strings"
	"testing"
)

func TestJoinPackagesSmallList(t *testing.T) {
	got := JoinPackages([]string{"com.a", "com.b", "com.c"})
	if got != "com.a,com.b,com.c" {
		t.Errorf("JoinPackages = %q", got)
	}
}

func TestJoinPackagesEmpty(t *testing.T) {
	if got := JoinPackages(nil); got != "" {
		t.Errorf("JoinPackages(nil) = %q, want empty", got)
	}
}

// The S8 scenario: many mid-sized packages accumulate under the cap.
func TestJoinPackagesCap(t *testing.T) {
	var packages []string
	for _, base := range []string{"aaaa", "bbbb", "cccc"} {
		for i := 0; i < 40; i++ {
			packages = append(packages, base)
		}
	}

	got := JoinPackages(packages)
	if len(got) > 150 {
		t.Errorf("joined length = %d, want <= 150", len(got))
	}
	// 40 'aaaa' entries fill 199 characters; packing stops once the
	// buffer passes the sufficient length of 125.
	if len(got) < 125 {
		t.Errorf("joined length = %d, want >= 125 (packer should fill to the sufficient length)", len(got))
	}
	if !strings.HasPrefix(got, "aaaa,aaaa") {
		t.Errorf("joined = %q, should start with the first packages", got)
	}
}

func TestJoinPackagesStopsPastSufficientLength(t *testing.T) {
	// Two long names that fit plus one that does not. After the second,
	// the buffer is past 125, so packing stops even though later short
	// names would fit.
	long := strings.Repeat("x", 70)
	got := JoinPackages([]string{long, long, strings.Repeat("y", 40), "z"})
	want := long + "," + long
	if got != want {
		t.Errorf("JoinPackages = %q (len %d), want the first two only (len %d)",
			got, len(got), len(want))
	}
}

func TestJoinPackagesTruncatesSingleHugePackage(t *testing.T) {
	huge := strings.Repeat("p", 200) + "tail"
	got := JoinPackages([]string{huge})

	if len(got) != 150 {
		t.Fatalf("truncated length = %d, want 150", len(got))
	}
	if !strings.HasSuffix(got, "tail-") {
		t.Errorf("truncation should keep the end of the name and append '-': %q", got[len(got)-10:])
	}
}

func TestJoinPackagesSkipsOversizedMiddlePackage(t *testing.T) {
	// An oversized package in the middle is skipped while the buffer is
	// still short, and later names keep packing.
	got := JoinPackages([]string{"com.a", strings.Repeat("q", 200), "com.b"})
	if got != "com.a,com.b" {
		t.Errorf("JoinPackages = %q, want %q", got, "com.a,com.b")
	}
}
