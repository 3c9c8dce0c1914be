package data

import (
	"archive/zip"
	"context"
	"io"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jlaffaye/ftp"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// FTPOptions configures the shapefile archive fetcher.
type FTPOptions struct {
	Host     string // host or host:port; port 21 assumed when absent
	User     string // defaults to anonymous
	Password string
	Timeout  time.Duration
}

// FTPFetcher downloads snapshot source archives, typically TIGER/Line zips
// from the census FTP mirror.
type FTPFetcher struct {
	opts FTPOptions
}

// NewFTPFetcher creates a fetcher with the given options.
func NewFTPFetcher(opts FTPOptions) *FTPFetcher {
	if opts.Timeout == 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.User == "" {
		opts.User = "anonymous"
		opts.Password = "anonymous@"
	}
	return &FTPFetcher{opts: opts}
}

// DownloadToFile retrieves a remote path into a local file and returns the
// bytes written.
func (f *FTPFetcher) DownloadToFile(ctx context.Context, remotePath, localPath string) (int64, error) {
	host := f.opts.Host
	if _, _, err := net.SplitHostPort(host); err != nil {
		host = net.JoinHostPort(host, "21")
	}

	zap.L().Debug("data: ftp connecting", zap.String("host", host), zap.String("path", remotePath))

	conn, err := ftp.Dial(host, ftp.DialWithTimeout(f.opts.Timeout), ftp.DialWithContext(ctx))
	if err != nil {
		return 0, eris.Wrap(err, "data: ftp dial")
	}
	defer conn.Quit()

	if err := conn.Login(f.opts.User, f.opts.Password); err != nil {
		return 0, eris.Wrap(err, "data: ftp login")
	}

	resp, err := conn.Retr(remotePath)
	if err != nil {
		return 0, eris.Wrap(err, "data: ftp retrieve")
	}
	defer resp.Close()

	file, err := os.Create(localPath)
	if err != nil {
		return 0, eris.Wrap(err, "data: create file")
	}
	defer file.Close()

	n, err := io.Copy(file, resp)
	if err != nil {
		return n, eris.Wrap(err, "data: write file")
	}
	return n, nil
}

// ExtractShapefile unpacks a zip archive into destDir and returns the path
// of the .shp member. The sibling .dbf/.shx members are extracted alongside
// so the shapefile reader can find them.
func ExtractShapefile(zipPath, destDir string) (string, error) {
	r, err := zip.OpenReader(zipPath)
	if err != nil {
		return "", eris.Wrap(err, "data: open archive")
	}
	defer r.Close()

	shpPath := ""
	for _, f := range r.File {
		path, err := extractArchiveEntry(f, destDir)
		if err != nil {
			return "", err
		}
		if strings.EqualFold(filepath.Ext(path), ".shp") {
			shpPath = path
		}
	}

	if shpPath == "" {
		return "", eris.Errorf("data: archive %s contains no .shp file", zipPath)
	}
	return shpPath, nil
}

func extractArchiveEntry(f *zip.File, destDir string) (string, error) {
	// Sanitize against zip slip
	destPath := filepath.Join(destDir, f.Name)
	if !strings.HasPrefix(filepath.Clean(destPath), filepath.Clean(destDir)+string(os.PathSeparator)) {
		return "", eris.Errorf("data: illegal archive path %q", f.Name)
	}

	if f.FileInfo().IsDir() {
		if err := os.MkdirAll(destPath, 0o755); err != nil {
			return "", eris.Wrap(err, "data: create directory")
		}
		return "", nil
	}

	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return "", eris.Wrap(err, "data: create parent directory")
	}

	rc, err := f.Open()
	if err != nil {
		return "", eris.Wrap(err, "data: open archive entry")
	}
	defer rc.Close()

	out, err := os.Create(destPath)
	if err != nil {
		return "", eris.Wrap(err, "data: create extracted file")
	}
	defer out.Close()

	if _, err := io.Copy(out, rc); err != nil {
		return "", eris.Wrap(err, "data: write extracted file")
	}
	return destPath, nil
}
