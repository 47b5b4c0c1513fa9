package fsutil

import (
	"os"
	"path/filepath"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func TestWriteFileAtomic(t *testing.T) {
	Convey("Given a path in a directory that does not exist yet", t, func() {
		path := filepath.Join(t.TempDir(), "nested", "config.yaml")

		Convey("Then the file is written with the requested permissions", func() {
			So(WriteFileAtomic(path, []byte("a: 1\n"), 0o600), ShouldBeNil)
			data, err := os.ReadFile(path)
			So(err, ShouldBeNil)
			So(string(data), ShouldEqual, "a: 1\n")
			info, err := os.Stat(path)
			So(err, ShouldBeNil)
			So(info.Mode().Perm(), ShouldEqual, os.FileMode(0o600))
		})

		Convey("And rewriting replaces the content without leaving temp files", func() {
			So(WriteFileAtomic(path, []byte("old"), 0o600), ShouldBeNil)
			So(WriteFileAtomic(path, []byte("new"), 0o600), ShouldBeNil)
			data, _ := os.ReadFile(path)
			So(string(data), ShouldEqual, "new")

			entries, err := os.ReadDir(filepath.Dir(path))
			So(err, ShouldBeNil)
			So(entries, ShouldHaveLength, 1)
		})
	})

	Convey("Given a path whose parent is a file", t, func() {
		parent := filepath.Join(t.TempDir(), "file")
		So(os.WriteFile(parent, nil, 0o600), ShouldBeNil)
		So(WriteFileAtomic(filepath.Join(parent, "x"), []byte("x"), 0o600), ShouldNotBeNil)
	})
}
