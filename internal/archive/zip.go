// Package archive はセッションディレクトリをzipアーカイブとしてストリーム出力する。
package archive

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/flate"
)

// Exporter はディレクトリの内容をzipとして書き出す。
type Exporter struct {
	level int
}

// NewExporter は最高圧縮率のExporterを生成する。
func NewExporter() *Exporter {
	return &Exporter{level: flate.BestCompression}
}

// Write はdir配下の全ファイルをzipとしてwに書き出し、書き込んだエントリ数を返す。
// エントリ名はdirからのスラッシュ区切り相対パスで、dir自体のフォルダは含めない。
//
// 出力は生成しながらwへ流れるため、途中でエラーになった場合は
// 不完全なアーカイブが既に書き込まれている可能性がある。
func (e *Exporter) Write(ctx context.Context, w io.Writer, dir string) (int, error) {
	zw := zip.NewWriter(w)
	zw.RegisterCompressor(zip.Deflate, func(out io.Writer) (io.WriteCloser, error) {
		return flate.NewWriter(out, e.level)
	})

	entries := 0
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}

		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		if err := addFile(zw, path, filepath.ToSlash(rel)); err != nil {
			return fmt.Errorf("failed to add %s: %w", rel, err)
		}
		entries++
		return nil
	})
	if err != nil {
		return entries, err
	}

	if err := zw.Close(); err != nil {
		return entries, fmt.Errorf("failed to finalize archive: %w", err)
	}
	return entries, nil
}

func addFile(zw *zip.Writer, path, name string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}

	header, err := zip.FileInfoHeader(info)
	if err != nil {
		return err
	}
	header.Name = name
	header.Method = zip.Deflate

	dst, err := zw.CreateHeader(header)
	if err != nil {
		return err
	}

	src, err := os.Open(path)
	if err != nil {
		return err
	}
	defer src.Close()

	_, err = io.Copy(dst, src)
	return err
}
