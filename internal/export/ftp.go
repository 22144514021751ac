package export

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/jlaffaye/ftp"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// UploaderOptions configures the FTP uploader.
type UploaderOptions struct {
	URL      string // ftp://host[:port][/base/dir]
	User     string
	Password string
	Timeout  time.Duration
}

// Uploader ships snapshot files to an FTP drop.
type Uploader struct {
	opts UploaderOptions
}

// NewUploader creates an Uploader with the given options.
func NewUploader(opts UploaderOptions) *Uploader {
	if opts.Timeout == 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.User == "" {
		opts.User = "anonymous"
		opts.Password = "anonymous@"
	}
	return &Uploader{opts: opts}
}

// SnapshotKey builds the date-partitioned remote path for a snapshot file:
// <prefix>/year=YYYY/month=MM/day=DD/<filename>.
func SnapshotKey(prefix string, taken time.Time, filename string) string {
	taken = taken.UTC()
	return path.Join(prefix,
		fmt.Sprintf("year=%04d", taken.Year()),
		fmt.Sprintf("month=%02d", int(taken.Month())),
		fmt.Sprintf("day=%02d", taken.Day()),
		filename,
	)
}

// parseUploadURL extracts host (with port) and base directory from an FTP URL.
func parseUploadURL(rawURL string) (host, baseDir string, err error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", "", eris.Wrap(err, "export: parse ftp url")
	}
	if u.Scheme != "ftp" {
		return "", "", eris.Errorf("export: expected ftp scheme, got %q", u.Scheme)
	}

	host = u.Host
	if _, _, splitErr := net.SplitHostPort(host); splitErr != nil {
		host = net.JoinHostPort(host, "21")
	}

	return host, strings.TrimPrefix(u.Path, "/"), nil
}

// Upload stores the reader's contents under key, creating intermediate
// directories as needed. The connection is opened and closed per call; uploads
// are infrequent enough that keeping a session alive buys nothing.
func (u *Uploader) Upload(ctx context.Context, key string, r io.Reader) error {
	host, baseDir, err := parseUploadURL(u.opts.URL)
	if err != nil {
		return err
	}
	remote := path.Join(baseDir, key)

	zap.L().Debug("ftp: uploading", zap.String("host", host), zap.String("path", remote))

	conn, err := ftp.Dial(host, ftp.DialWithTimeout(u.opts.Timeout), ftp.DialWithContext(ctx))
	if err != nil {
		return eris.Wrap(err, "export: ftp dial")
	}
	defer conn.Quit() //nolint:errcheck

	if err := conn.Login(u.opts.User, u.opts.Password); err != nil {
		return eris.Wrap(err, "export: ftp login")
	}

	// MakeDir fails on existing directories; that is fine.
	dir := path.Dir(remote)
	if dir != "." && dir != "/" {
		partial := ""
		for _, seg := range strings.Split(dir, "/") {
			partial = path.Join(partial, seg)
			_ = conn.MakeDir(partial)
		}
	}

	if err := conn.Stor(remote, r); err != nil {
		return eris.Wrapf(err, "export: ftp store %s", remote)
	}

	zap.L().Info("ftp: snapshot uploaded", zap.String("path", remote))
	return nil
}
