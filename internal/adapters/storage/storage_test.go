package storage

import (
	"context"
	"errors"
	"io"
	"mime"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"
)

func TestSanitizeFilename(t *testing.T) {
	Convey("Given client supplied filenames", t, func() {
		cases := map[string]string{
			"sprint.webm":               "sprint.webm",
			"my clip (1).webm":          "my_clip_1_.webm",
			"../../etc/passwd":          "passwd",
			`C:\videos\jump.mp4`:        "jump.mp4",
			".hidden.webm":              "hidden.webm",
			"":                          DefaultClipName,
			"???":                       DefaultClipName,
			"..":                        DefaultClipName,
			"a___b.webm":                "a_b.webm",
			"naïve-run.webm":            "na_ve-run.webm",
			strings.Repeat("x", 150):    strings.Repeat("x", 100),
		}
		for in, want := range cases {
			So(SanitizeFilename(in), ShouldEqual, want)
		}
	})
}

func TestObjectName(t *testing.T) {
	Convey("Given a timestamp and a name", t, func() {
		now := time.UnixMilli(1700000000123)
		name := ObjectName("../run.webm", now)

		Convey("Then the key is timestamp, random part and sanitized name", func() {
			So(name, ShouldStartWith, "1700000000123-")
			So(regexp.MustCompile(`^\d+-\d+-run\.webm$`).MatchString(name), ShouldBeTrue)
			So(validKey(name), ShouldBeTrue)
		})
	})
}

func TestDiskStore(t *testing.T) {
	Convey("Given a disk store in a temp dir", t, func() {
		root := t.TempDir()
		d, err := NewDiskStore(root)
		So(err, ShouldBeNil)
		ctx := context.Background()

		Convey("When a clip is saved", func() {
			key, n, err := d.Save(ctx, "jump.webm", "video/webm", strings.NewReader("fake-bytes"))
			So(err, ShouldBeNil)
			So(n, ShouldEqual, 10)

			Convey("Then it lives inside the root and reads back", func() {
				_, statErr := os.Stat(filepath.Join(root, key))
				So(statErr, ShouldBeNil)

				rc, info, err := d.Open(ctx, key)
				So(err, ShouldBeNil)
				defer rc.Close()
				body, _ := io.ReadAll(rc)
				So(string(body), ShouldEqual, "fake-bytes")
				So(info.Size, ShouldEqual, 10)
				So(info.ContentType, ShouldEqual, "video/webm")
			})

			Convey("Then Remove deletes it and Open reports not found", func() {
				So(d.Remove(ctx, key), ShouldBeNil)
				_, _, err := d.Open(ctx, key)
				So(errors.Is(err, ErrNotFound), ShouldBeTrue)
				So(d.Remove(ctx, key), ShouldBeNil)
			})
		})

		Convey("When the name carries no extension of the uploaded type", func() {
			for name, ct := range map[string]string{
				"recording":   "video/mp4",
				"clip.dat":    "video/mp4",
				"take.webm":   "video/quicktime",
				"swing":       "video/webm; codecs=vp8",
				"already.mkv": "video/x-matroska",
			} {
				key, _, err := d.Save(ctx, name, ct, strings.NewReader("fake-bytes"))
				So(err, ShouldBeNil)

				rc, info, err := d.Open(ctx, key)
				So(err, ShouldBeNil)
				rc.Close()
				want, _, _ := mime.ParseMediaType(ct)
				So(info.ContentType, ShouldEqual, want)
			}
		})

		Convey("When the declared type is the one the name implies", func() {
			key, _, err := d.Save(ctx, "sprint.mp4", "video/mp4", strings.NewReader("x"))
			So(err, ShouldBeNil)
			So(key, ShouldEndWith, "-sprint.mp4")
		})

		Convey("When the reader fails midway", func() {
			_, _, err := d.Save(ctx, "x.webm", "video/webm", io.MultiReader(strings.NewReader("abc"), errReader{}))

			Convey("Then no partial file is left behind", func() {
				So(err, ShouldNotBeNil)
				entries, _ := os.ReadDir(root)
				So(entries, ShouldBeEmpty)
			})
		})

		Convey("When the context is cancelled", func() {
			cctx, cancel := context.WithCancel(ctx)
			cancel()
			_, _, err := d.Save(cctx, "x.webm", "video/webm", strings.NewReader("abc"))
			So(errors.Is(err, context.Canceled), ShouldBeTrue)
		})

		Convey("When keys try to escape the root", func() {
			for _, key := range []string{"../x", "a/b", ".hidden", "", ".."} {
				_, _, err := d.Open(ctx, key)
				So(errors.Is(err, ErrInvalidKey), ShouldBeTrue)
				So(errors.Is(d.Remove(ctx, key), ErrInvalidKey), ShouldBeTrue)
			}
		})
	})
}

type errReader struct{}

func (errReader) Read([]byte) (int, error) { return 0, errors.New("connection reset") }
