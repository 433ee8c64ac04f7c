package workarea_test

import (
	"testing"

	"github.com/sshoecraft/mmprocess/internal/workarea"
)

func TestNormalize(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"My Movie (2020).MKV", "my_movie_2020.mkv"},
		{"Some.Show.S01E02.1080p.mkv", "some_show_s01e02_1080p.mkv"},
		{"Amélie.mkv", "amelie.mkv"},
		{"__weird--name__.MP4", "weird_name.mp4"},
		{"UPPER.AVI", "upper.avi"},
		{"noextension", "noextension"},
		{"spaces  and  more.mov", "spaces_and_more.mov"},
		{"!!!.mkv", "job.mkv"},
	}
	for _, tc := range cases {
		if got := workarea.Normalize(tc.in); got != tc.want {
			t.Errorf("Normalize(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestJobName(t *testing.T) {
	if got := workarea.JobName("My Movie (2020).MKV"); got != "my_movie_2020" {
		t.Fatalf("JobName = %q", got)
	}
	if got := workarea.JobName("noextension"); got != "noextension" {
		t.Fatalf("JobName = %q", got)
	}
}
