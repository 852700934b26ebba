package vector

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/mock/gomock"

	"github.com/quay/cvssadjust"
	"github.com/quay/cvssadjust/scoring"
	mock_scoring "github.com/quay/cvssadjust/test/mock/scoring"
)

// NewEngine returns an Engine with a scorer that must not be called.
func newEngine(t testing.TB, cfg *Config) *Engine {
	t.Helper()
	e, err := New(cfg, scoring.Func(func(_ context.Context, vec string, _ scoring.Version) (scoring.Scores, error) {
		t.Errorf("unexpected call to scorer: %q", vec)
		return scoring.Scores{}, errors.New("unexpected call")
	}))
	if err != nil {
		t.Fatal(err)
	}
	return e
}

func TestNew(t *testing.T) {
	s := scoring.Toolkit{}
	t.Run("Defaults", func(t *testing.T) {
		e, err := New(nil, s)
		if err != nil {
			t.Fatal(err)
		}
		if got, want := e.Version(), scoring.V31; got != want {
			t.Errorf("got: %q, want: %q", got, want)
		}
	})
	t.Run("V30", func(t *testing.T) {
		e, err := New(&Config{Version: "3.0"}, s)
		if err != nil {
			t.Fatal(err)
		}
		got := e.Serialize(Values{"N", "L", "N", "N", "U", "H", "H", "H"})
		if want := "CVSS:3.0/AV:N/AC:L/PR:N/UI:N/S:U/C:H/I:H/A:H"; got != want {
			t.Errorf("got: %q, want: %q", got, want)
		}
	})
	for name, tc := range map[string]struct {
		cfg *Config
		s   scoring.Scorer
	}{
		"NilScorer":    {cfg: nil, s: nil},
		"BadVersion":   {cfg: &Config{Version: "4.0"}, s: s},
		"BadSeparator": {cfg: &Config{Separator: ":"}, s: s},
	} {
		t.Run(name, func(t *testing.T) {
			_, err := New(tc.cfg, tc.s)
			if !errors.Is(err, cvssadjust.ErrInvalid) {
				t.Errorf("expected %v, got: %v", cvssadjust.ErrInvalid, err)
			}
		})
	}
}

func TestSerialize(t *testing.T) {
	e := newEngine(t, nil)
	tt := []struct {
		In   Values
		Want string
	}{
		{
			In:   Values{"N", "L", "N", "N", "C", "L", "L", "L"},
			Want: "CVSS:3.1/AV:N/AC:L/PR:N/UI:N/S:C/C:L/I:L/A:L",
		},
		{
			In:   Values{"P", "H", "H", "R", "U", "N", "N", "N"},
			Want: "CVSS:3.1/AV:P/AC:H/PR:H/UI:R/S:U/C:N/I:N/A:N",
		},
		// Nonsense values are passed through.
		{
			In:   Values{"Q", "Q", "Q", "Q", "Q", "Q", "Q", "Q"},
			Want: "CVSS:3.1/AV:Q/AC:Q/PR:Q/UI:Q/S:Q/C:Q/I:Q/A:Q",
		},
		{
			In:   Values{},
			Want: "CVSS:3.1/AV:/AC:/PR:/UI:/S:/C:/I:/A:",
		},
	}
	for _, tc := range tt {
		if got := e.Serialize(tc.In); got != tc.Want {
			t.Errorf("got: %q, want: %q", got, tc.Want)
		}
	}

	t.Run("Separator", func(t *testing.T) {
		e := newEngine(t, &Config{Separator: ";"})
		got := e.Serialize(Values{"N", "L", "N", "N", "C", "L", "L", "L"})
		if want := "CVSS:3.1;AV:N;AC:L;PR:N;UI:N;S:C;C:L;I:L;A:L"; got != want {
			t.Errorf("got: %q, want: %q", got, want)
		}
	})
}

type parseTestcase struct {
	Name   string
	In     string
	Want   Values
	Strict bool
	Error  bool
}

func (tc parseTestcase) Run(t *testing.T) {
	e := newEngine(t, &Config{Strict: tc.Strict})
	got, err := e.Parse(tc.In)
	switch {
	case tc.Error && err == nil:
		t.Fatalf("%q: expected error, got: %v", tc.In, got)
	case tc.Error:
		t.Log(err)
		if !errors.Is(err, cvssadjust.ErrMalformedVector) {
			t.Errorf("wrong error kind: %v", err)
		}
		return
	case err != nil:
		t.Fatalf("%q: unexpected error: %v", tc.In, err)
	}
	if !cmp.Equal(got, tc.Want) {
		t.Error(cmp.Diff(got, tc.Want))
	}
}

func TestParse(t *testing.T) {
	tt := []parseTestcase{
		{
			Name: "Simple",
			In:   "CVSS:3.1/AV:N/AC:L/PR:N/UI:N/S:C/C:L/I:L/A:L",
			Want: Values{"N", "L", "N", "N", "C", "L", "L", "L"},
		},
		{
			Name: "V30",
			In:   "CVSS:3.0/AV:N/AC:L/PR:N/UI:N/S:U/C:H/I:H/A:H",
			Want: Values{"N", "L", "N", "N", "U", "H", "H", "H"},
		},
		{
			Name: "Lenient",
			In:   "CVSS:3.1/AV:Q/AC:L/PR:N/UI:N/S:C/C:L/I:L/A:ZZ",
			Want: Values{"Q", "L", "N", "N", "C", "L", "L", "ZZ"},
		},
		{
			Name: "LenientPreamble",
			In:   "whatever/AV:N/AC:L/PR:N/UI:N/S:C/C:L/I:L/A:L",
			Want: Values{"N", "L", "N", "N", "C", "L", "L", "L"},
		},
		{Name: "TooFew", In: "CVSS:3.1/AV:N/AC:L/PR:N/UI:N/S:C/C:L/I:L", Error: true},
		{Name: "TooMany", In: "CVSS:3.1/AV:N/AC:L/PR:N/UI:N/S:C/C:L/I:L/A:L/E:F", Error: true},
		{Name: "TrailingSeparator", In: "CVSS:3.1/AV:N/AC:L/PR:N/UI:N/S:C/C:L/I:L/A:L/", Error: true},
		{Name: "MissingColon", In: "CVSS:3.1/AV:N/AC:L/PR:N/UI:N/S:C/C:L/I:L/A-L", Error: true},
		{Name: "ExtraColon", In: "CVSS:3.1/AV:N/AC:L/PR:N/UI:N/S:C/C:L/I:L/A:L:L", Error: true},
		{Name: "EmptyValue", In: "CVSS:3.1/AV:N/AC:L/PR:N/UI:N/S:C/C:/I:L/A:L", Error: true},
		{Name: "Empty", In: "", Error: true},
		{Name: "NoPreamble", In: "AV:N/AC:L/PR:N/UI:N/S:C/C:L/I:L/A:L", Error: true},
		{
			Name:   "Strict",
			In:     "CVSS:3.1/AV:N/AC:L/PR:N/UI:N/S:C/C:L/I:L/A:L",
			Want:   Values{"N", "L", "N", "N", "C", "L", "L", "L"},
			Strict: true,
		},
		{Name: "StrictValue", In: "CVSS:3.1/AV:Q/AC:L/PR:N/UI:N/S:C/C:L/I:L/A:L", Strict: true, Error: true},
		{Name: "StrictOrder", In: "CVSS:3.1/AC:L/AV:N/PR:N/UI:N/S:C/C:L/I:L/A:L", Strict: true, Error: true},
		{Name: "StrictPreamble", In: "CVSS:9.9/AV:N/AC:L/PR:N/UI:N/S:C/C:L/I:L/A:L", Strict: true, Error: true},
		{Name: "StrictSentinel", In: "CVSS:3.1/AV:X/AC:L/PR:N/UI:N/S:C/C:L/I:L/A:L", Strict: true, Error: true},
	}
	for _, tc := range tt {
		t.Run(tc.Name, tc.Run)
	}
}

func TestRoundtrip(t *testing.T) {
	e := newEngine(t, nil)
	vs := []Values{
		{"N", "L", "N", "N", "C", "L", "L", "L"},
		{"P", "H", "H", "R", "U", "N", "N", "N"},
		{"A", "L", "L", "N", "U", "H", "L", "N"},
		{"nonsense", "1", "2", "3", "4", "5", "6", "7"},
	}
	for _, v := range vs {
		s := e.Serialize(v)
		got, err := e.Parse(s)
		if err != nil {
			t.Fatal(err)
		}
		if !cmp.Equal(got, v) {
			t.Error(cmp.Diff(got, v))
		}
		if got := e.Serialize(got); got != s {
			t.Errorf("got: %q, want: %q", got, s)
		}
	}
}

func FuzzRoundtrip(f *testing.F) {
	f.Add("N", "L", "N", "N", "C", "L", "L", "L")
	f.Add("P", "H", "H", "R", "U", "N", "N", "N")
	e := newEngine(f, nil)
	f.Fuzz(func(t *testing.T, av, ac, pr, ui, s, c, i, a string) {
		v := Values{av, ac, pr, ui, s, c, i, a}
		for _, val := range v {
			// Not well-formed values.
			if val == "" || strings.ContainsAny(val, "/:") {
				t.Skip()
			}
		}
		got, err := e.Parse(e.Serialize(v))
		if err != nil {
			t.Fatal(err)
		}
		if got != v {
			t.Errorf("got: %q, want: %q", got, v)
		}
	})
}

type overlayTestcase struct {
	Name   string
	In     string
	Want   Values
	Strict bool
	Error  bool
}

func (tc overlayTestcase) Run(t *testing.T) {
	e := newEngine(t, &Config{Strict: tc.Strict})
	got, err := e.ParseOverlay(tc.In)
	switch {
	case tc.Error && err == nil:
		t.Fatalf("%q: expected error, got: %v", tc.In, got)
	case tc.Error:
		t.Log(err)
		if !errors.Is(err, cvssadjust.ErrMalformedVector) {
			t.Errorf("wrong error kind: %v", err)
		}
		return
	case err != nil:
		t.Fatalf("%q: unexpected error: %v", tc.In, err)
	}
	if !cmp.Equal(got, tc.Want) {
		t.Error(cmp.Diff(got, tc.Want))
	}
}

func TestParseOverlay(t *testing.T) {
	tt := []overlayTestcase{
		{Name: "Empty", In: "", Want: NoChange()},
		{
			Name: "Two",
			In:   "MAV:H/MC:N",
			Want: Values{"H", "X", "X", "X", "X", "N", "X", "X"},
		},
		{
			Name: "Four",
			In:   "MAV:L/MC:H/MI:H/MA:H",
			Want: Values{"L", "X", "X", "X", "X", "H", "H", "H"},
		},
		{
			Name: "All",
			In:   "MAV:P/MAC:H/MPR:H/MUI:R/MS:U/MC:N/MI:N/MA:N",
			Want: Values{"P", "H", "H", "R", "U", "N", "N", "N"},
		},
		{
			Name: "Unknown",
			In:   "MAV:L/CR:H/MZ:Q/MC:H",
			Want: Values{"L", "X", "X", "X", "X", "H", "X", "X"},
		},
		{
			Name: "BaseCodesIgnored",
			In:   "AV:L/C:H",
			Want: NoChange(),
		},
		{
			Name: "LastWins",
			In:   "MAV:L/MAV:P",
			Want: Values{"P", "X", "X", "X", "X", "X", "X", "X"},
		},
		{
			Name: "EmptySegments",
			In:   "MAV:L//MC:H/",
			Want: Values{"L", "X", "X", "X", "X", "H", "X", "X"},
		},
		{Name: "MissingColon", In: "MAV:L/MC", Error: true},
		{Name: "EmptyValue", In: "MAV:", Error: true},
		{Name: "StrictUnknown", In: "MAV:L/MZ:Q", Strict: true, Error: true},
		{Name: "StrictValue", In: "MAV:Q", Strict: true, Error: true},
		{
			Name:   "StrictSentinel",
			In:     "MAV:X/MC:H",
			Want:   Values{"X", "X", "X", "X", "X", "H", "X", "X"},
			Strict: true,
		},
	}
	for _, tc := range tt {
		t.Run(tc.Name, tc.Run)
	}
}

func TestMerge(t *testing.T) {
	base := Values{"N", "L", "N", "N", "C", "L", "L", "L"}
	t.Run("Identity", func(t *testing.T) {
		if got := Merge(base, NoChange()); !cmp.Equal(got, base) {
			t.Error(cmp.Diff(got, base))
		}
	})
	t.Run("Total", func(t *testing.T) {
		full := Values{"P", "H", "H", "R", "U", "N", "N", "N"}
		if got := Merge(base, full); !cmp.Equal(got, full) {
			t.Error(cmp.Diff(got, full))
		}
	})
	t.Run("Partial", func(t *testing.T) {
		got := Merge(base, Values{"L", "X", "X", "X", "X", "H", "H", "H"})
		want := Values{"L", "L", "N", "N", "C", "H", "H", "H"}
		if !cmp.Equal(got, want) {
			t.Error(cmp.Diff(got, want))
		}
	})
	t.Run("Pure", func(t *testing.T) {
		b, o := base, Values{"L", "X", "X", "X", "X", "H", "H", "H"}
		Merge(b, o)
		if b != base || o != (Values{"L", "X", "X", "X", "X", "H", "H", "H"}) {
			t.Error("inputs modified")
		}
	})
	t.Run("OrderIndependent", func(t *testing.T) {
		e := newEngine(t, nil)
		var want Values
		for i, s := range []string{
			"MAV:L/MC:H/MI:H/MA:H",
			"MA:H/MI:H/MC:H/MAV:L",
			"MC:H/MAV:L/MA:H/MI:H",
		} {
			ov, err := e.ParseOverlay(s)
			if err != nil {
				t.Fatal(err)
			}
			got := Merge(base, ov)
			if i == 0 {
				want = got
				continue
			}
			if !cmp.Equal(got, want) {
				t.Errorf("%q: %s", s, cmp.Diff(got, want))
			}
		}
	})
	t.Run("UnknownTolerated", func(t *testing.T) {
		e := newEngine(t, nil)
		with, err := e.ParseOverlay("MAV:L/MQ:Z/MC:H")
		if err != nil {
			t.Fatal(err)
		}
		without, err := e.ParseOverlay("MAV:L/MC:H")
		if err != nil {
			t.Fatal(err)
		}
		if got, want := Merge(base, with), Merge(base, without); !cmp.Equal(got, want) {
			t.Error(cmp.Diff(got, want))
		}
	})
}

func TestModify(t *testing.T) {
	e := newEngine(t, nil)
	got, err := e.Modify("CVSS:3.1/AV:N/AC:L/PR:N/UI:N/S:C/C:L/I:L/A:L", "MAV:L/MC:H/MI:H/MA:H")
	if err != nil {
		t.Fatal(err)
	}
	if want := "CVSS:3.1/AV:L/AC:L/PR:N/UI:N/S:C/C:H/I:H/A:H"; got != want {
		t.Errorf("got: %q, want: %q", got, want)
	}
	// The preamble is rewritten to the Engine's version.
	got, err = e.Modify("CVSS:3.0/AV:N/AC:L/PR:N/UI:N/S:C/C:L/I:L/A:L", "")
	if err != nil {
		t.Fatal(err)
	}
	if want := "CVSS:3.1/AV:N/AC:L/PR:N/UI:N/S:C/C:L/I:L/A:L"; got != want {
		t.Errorf("got: %q, want: %q", got, want)
	}
	if _, err := e.Modify("AV:N/AC:L/Au:N/C:P/I:P/A:P", "MAV:L"); !errors.Is(err, cvssadjust.ErrMalformedVector) {
		t.Errorf("expected malformed vector for v2 input, got: %v", err)
	}
	if _, err := e.Modify("CVSS:3.1/AV:N/AC:L/PR:N/UI:N/S:C/C:L/I:L/A:L", "MAV"); !errors.Is(err, cvssadjust.ErrMalformedVector) {
		t.Errorf("expected malformed vector for bad overlay, got: %v", err)
	}
}

func TestModifyAndScore(t *testing.T) {
	ctx := context.Background()
	ctrl := gomock.NewController(t)
	s := mock_scoring.NewMockScorer(ctrl)
	s.EXPECT().
		Score(gomock.Any(), "CVSS:3.1/AV:L/AC:L/PR:N/UI:N/S:C/C:H/I:H/A:H", scoring.V31).
		Return(scoring.Scores{8.8, 8.8, 8.8}, nil).
		Times(1)
	e, err := New(nil, s)
	if err != nil {
		t.Fatal(err)
	}

	got, err := e.ModifyAndScore(ctx, "CVSS:3.1/AV:N/AC:L/PR:N/UI:N/S:C/C:H/I:H/A:H", "MAV:L/MC:H")
	if err != nil {
		t.Fatal(err)
	}
	if got != 8.8 {
		t.Errorf("got: %v, want: 8.8", got)
	}
}

func TestScore(t *testing.T) {
	ctx := context.Background()
	t.Run("Toolkit", func(t *testing.T) {
		e, err := New(nil, scoring.Toolkit{})
		if err != nil {
			t.Fatal(err)
		}
		got, err := e.Score(ctx, "CVSS:3.1/AV:N/AC:L/PR:N/UI:N/S:U/C:H/I:H/A:H")
		if err != nil {
			t.Fatal(err)
		}
		if got != 9.8 {
			t.Errorf("got: %v, want: 9.8", got)
		}
	})
	t.Run("EngineError", func(t *testing.T) {
		sentinel := errors.New("engine exploded")
		e, err := New(nil, scoring.Func(func(context.Context, string, scoring.Version) (scoring.Scores, error) {
			return scoring.Scores{}, sentinel
		}))
		if err != nil {
			t.Fatal(err)
		}
		if _, err := e.Score(ctx, "CVSS:3.1/AV:N"); !errors.Is(err, sentinel) {
			t.Errorf("expected engine error to surface, got: %v", err)
		}
		if _, err := e.ModifyAndScore(ctx, "CVSS:3.1/AV:N/AC:L/PR:N/UI:N/S:C/C:H/I:H/A:H", "MAV:Q"); !errors.Is(err, sentinel) {
			t.Errorf("expected engine error to surface, got: %v", err)
		}
	})
}

func TestMetric(t *testing.T) {
	if got, want := Scope.String(), "S"; got != want {
		t.Errorf("got: %q, want: %q", got, want)
	}
	if got, want := PrivilegesRequired.Modified(), "MPR"; got != want {
		t.Errorf("got: %q, want: %q", got, want)
	}
	if got, want := Metric(12).String(), "Metric(12)"; got != want {
		t.Errorf("got: %q, want: %q", got, want)
	}
	v := Values{"N", "L", "N", "N", "C", "L", "L", "L"}
	if got, want := v[Scope], "C"; got != want {
		t.Errorf("got: %q, want: %q", got, want)
	}
}

func TestAll(t *testing.T) {
	e := newEngine(t, nil)
	var got []string
	seen := make(map[Values]bool)
	for v := range All() {
		if seen[v] {
			t.Errorf("duplicate: %v", v)
		}
		seen[v] = true
		got = append(got, e.Serialize(v))
	}
	if got, want := len(got), 4*2*3*2*2*3*3*3; got != want {
		t.Fatalf("got: %d vectors, want: %d", got, want)
	}
	want := []string{
		"CVSS:3.1/AV:N/AC:L/PR:N/UI:N/S:U/C:H/I:H/A:H",
		"CVSS:3.1/AV:N/AC:L/PR:N/UI:N/S:U/C:H/I:H/A:L",
		"CVSS:3.1/AV:N/AC:L/PR:N/UI:N/S:U/C:H/I:H/A:N",
		"CVSS:3.1/AV:N/AC:L/PR:N/UI:N/S:U/C:H/I:L/A:H",
	}
	if !cmp.Equal(got[:len(want)], want) {
		t.Error(cmp.Diff(got[:len(want)], want))
	}
	if got, want := got[len(got)-1], "CVSS:3.1/AV:P/AC:H/PR:H/UI:R/S:C/C:N/I:N/A:N"; got != want {
		t.Errorf("got: %q, want: %q", got, want)
	}

	strict := newEngine(t, &Config{Strict: true})
	for _, vec := range got[:100] {
		if _, err := strict.Parse(vec); err != nil {
			t.Error(err)
		}
	}
}

func TestGenerate(t *testing.T) {
	ctx := context.Background()
	const total = 2592

	t.Run("Base", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		s := mock_scoring.NewMockScorer(ctrl)
		s.EXPECT().
			Score(gomock.Any(), gomock.Any(), scoring.V31).
			Return(scoring.Scores{5, 5, 5}, nil).
			Times(total)
		e, err := New(nil, s)
		if err != nil {
			t.Fatal(err)
		}
		n := 0
		for g, err := range e.Generate(ctx, "") {
			if err != nil {
				t.Fatal(err)
			}
			if g.Modified != "" || g.ModifiedScore != 0 {
				t.Errorf("unexpected modification: %+v", g)
			}
			n++
		}
		if n != total {
			t.Errorf("got: %d, want: %d", n, total)
		}
	})
	t.Run("Overlay", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		s := mock_scoring.NewMockScorer(ctrl)
		s.EXPECT().
			Score(gomock.Any(), gomock.Any(), scoring.V31).
			DoAndReturn(func(_ context.Context, vec string, _ scoring.Version) (scoring.Scores, error) {
				if strings.Contains(vec, "/AV:L/") && strings.HasSuffix(vec, "/C:H/I:H/A:H") {
					return scoring.Scores{1, 1, 1}, nil
				}
				return scoring.Scores{2, 2, 2}, nil
			}).
			Times(2 * total)
		e, err := New(nil, s)
		if err != nil {
			t.Fatal(err)
		}
		n := 0
		for g, err := range e.Generate(ctx, "MAV:L/MC:H/MI:H/MA:H") {
			if err != nil {
				t.Fatal(err)
			}
			if n == 0 {
				want := Generated{
					Vector:        "CVSS:3.1/AV:N/AC:L/PR:N/UI:N/S:U/C:H/I:H/A:H",
					Score:         2,
					Modified:      "CVSS:3.1/AV:L/AC:L/PR:N/UI:N/S:U/C:H/I:H/A:H",
					ModifiedScore: 1,
				}
				if !cmp.Equal(g, want) {
					t.Error(cmp.Diff(g, want))
				}
			}
			if g.ModifiedScore != 1 {
				t.Errorf("%s: modified vector not overlaid: %s", g.Vector, g.Modified)
			}
			n++
		}
		if n != total {
			t.Errorf("got: %d, want: %d", n, total)
		}
	})
	t.Run("Stop", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		s := mock_scoring.NewMockScorer(ctrl)
		s.EXPECT().
			Score(gomock.Any(), gomock.Any(), scoring.V31).
			Return(scoring.Scores{5, 5, 5}, nil).
			Times(3)
		e, err := New(nil, s)
		if err != nil {
			t.Fatal(err)
		}
		n := 0
		for range e.Generate(ctx, "") {
			n++
			if n == 3 {
				break
			}
		}
	})
	t.Run("BadOverlay", func(t *testing.T) {
		e := newEngine(t, nil)
		n := 0
		for _, err := range e.Generate(ctx, "MAV") {
			n++
			if !errors.Is(err, cvssadjust.ErrMalformedVector) {
				t.Errorf("unexpected error: %v", err)
			}
		}
		if n != 1 {
			t.Errorf("got: %d results, want: 1", n)
		}
	})
	t.Run("EngineError", func(t *testing.T) {
		sentinel := errors.New("engine exploded")
		e, err := New(nil, scoring.Func(func(context.Context, string, scoring.Version) (scoring.Scores, error) {
			return scoring.Scores{}, sentinel
		}))
		if err != nil {
			t.Fatal(err)
		}
		n := 0
		for _, err := range e.Generate(ctx, "") {
			n++
			if !errors.Is(err, sentinel) {
				t.Errorf("unexpected error: %v", err)
			}
		}
		if n != 1 {
			t.Errorf("got: %d results, want: 1", n)
		}
	})
}
