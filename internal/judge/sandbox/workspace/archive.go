package workspace

import (
	"archive/tar"
	"io"
	"os"
	"path/filepath"

	appErr "coderunner/pkg/errors"

	"github.com/klauspost/compress/zstd"
)

// writeArchive packs dir into a zstd compressed tarball and returns its size.
func writeArchive(dir, dest string) (int64, error) {
	out, err := os.Create(dest)
	if err != nil {
		return 0, appErr.Wrapf(err, appErr.WorkAreaError, "create archive failed")
	}
	defer out.Close()

	enc, err := zstd.NewWriter(out, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return 0, appErr.Wrapf(err, appErr.WorkAreaError, "init zstd encoder failed")
	}
	tw := tar.NewWriter(enc)

	walkErr := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil || rel == "." {
			return err
		}
		hdr, err := tar.FileInfoHeader(info, "")
		if err != nil {
			return err
		}
		hdr.Name = filepath.ToSlash(rel)
		if err := tw.WriteHeader(hdr); err != nil {
			return err
		}
		if !info.Mode().IsRegular() {
			return nil
		}
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()
		_, err = io.Copy(tw, f)
		return err
	})
	if walkErr != nil {
		_ = tw.Close()
		_ = enc.Close()
		return 0, appErr.Wrapf(walkErr, appErr.WorkAreaError, "archive work area failed")
	}
	if err := tw.Close(); err != nil {
		_ = enc.Close()
		return 0, appErr.Wrapf(err, appErr.WorkAreaError, "finish tar failed")
	}
	if err := enc.Close(); err != nil {
		return 0, appErr.Wrapf(err, appErr.WorkAreaError, "finish zstd failed")
	}
	info, err := out.Stat()
	if err != nil {
		return 0, appErr.Wrapf(err, appErr.WorkAreaError, "stat archive failed")
	}
	return info.Size(), nil
}
