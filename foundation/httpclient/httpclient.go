// Package httpclient provides basic http functions
package httpclient

import (
	"context"
	"fmt"
	"io"
	"math"
	"net/http"
	"os"
	"time"
)

// RemoteFileInfo contains information
type RemoteFileInfo struct {
	ETag                  string
	LastModifiedTimestamp int64
	Path                  string
}

// GetRemoteFileInfo retrieves ETag and last modified timestamp from url using a HEAD request
func GetRemoteFileInfo(url string) (RemoteFileInfo, error) {
	resp, err := http.Head(url)
	if err != nil {
		return RemoteFileInfo{}, err
	}
	return getRemoteFileInfo(url, resp), nil
}

func getRemoteFileInfo(url string, resp *http.Response) RemoteFileInfo {
	result := RemoteFileInfo{
		Path: url,
	}
	result.ETag = resp.Header.Get("ETag")

	lastModifiedString := resp.Header.Get("Last-Modified")

	if len(lastModifiedString) > 0 {
		parsedTime, err := time.Parse(time.RFC1123, lastModifiedString)
		if err == nil {
			result.LastModifiedTimestamp = parsedTime.Unix()
		}
	}
	return result

}

func (df *RemoteFileInfo) IsDifferent(etag string, lastModifiedTimestamp int64) bool {
	if len(df.ETag) > 0 {
		return df.ETag != etag
	}
	return df.LastModifiedTimestamp != lastModifiedTimestamp
}

// DownloadedFile contains information about a file that has been downloaded to the local file system
type DownloadedFile struct {
	RemoteFileInfo RemoteFileInfo
	LocalFilePath  string
	Size           int64
	DownloadedAt   time.Time
}

// DownloadRemoteFile retrieves a file from a url to a local file destination.
// On success returns information about the file in DownloadedFile
func DownloadRemoteFile(destinationFileName string, url string) (*DownloadedFile, error) {
	// Get the data
	resp, err := http.Get(url)
	if err != nil {
		return nil, err
	}

	defer func() {
		_ = resp.Body.Close()
	}()

	// Create the file
	out, err := os.Create(destinationFileName)
	if err != nil {
		return nil, err
	}

	defer func() {
		_ = out.Close()
	}()
	// Write the body to file
	bytesWritten, err := io.Copy(out, resp.Body)
	if err != nil {
		return nil, err
	}
	remoteFileInfo := getRemoteFileInfo(url, resp)

	result := DownloadedFile{
		RemoteFileInfo: remoteFileInfo,
		LocalFilePath:  destinationFileName,
		Size:           bytesWritten,
		DownloadedAt:   time.Now(),
	}
	return &result, err
}

// RetriableStatus is the set of http status codes considered transient and worth retrying
var RetriableStatus = map[int]bool{
	http.StatusInternalServerError: true,
	http.StatusServiceUnavailable:  true,
	http.StatusGatewayTimeout:      true,
}

// BackoffSeconds implements the retry schedule 0.5 * 1.5^(attempt-1), attempt starting at 1
func BackoffSeconds(attempt int) time.Duration {
	seconds := 0.5 * math.Pow(1.5, float64(attempt-1))
	return time.Duration(seconds * float64(time.Second))
}

// GetWithRetry issues req, retrying on RetriableStatus with BackoffSeconds until retryTimeout elapses
// or ctx is done. Returns the first successful (2xx) response, or the last error/response encountered.
func GetWithRetry(ctx context.Context, client *http.Client, req *http.Request, retryTimeout time.Duration) (*http.Response, error) {
	deadline := time.Now().Add(retryTimeout)
	attempt := 0
	for {
		attempt++
		resp, err := client.Do(req.WithContext(ctx))
		if err != nil {
			if time.Now().After(deadline) {
				return nil, fmt.Errorf("giving up after %d attempts: %w", attempt, err)
			}
			if !sleepOrDone(ctx, BackoffSeconds(attempt)) {
				return nil, ctx.Err()
			}
			continue
		}
		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return resp, nil
		}
		if !RetriableStatus[resp.StatusCode] {
			return resp, nil
		}
		_ = resp.Body.Close()
		if time.Now().After(deadline) {
			return resp, fmt.Errorf("giving up after %d attempts, last status %d", attempt, resp.StatusCode)
		}
		if !sleepOrDone(ctx, BackoffSeconds(attempt)) {
			return nil, ctx.Err()
		}
	}
}

// sleepOrDone sleeps for d, returning false early if ctx is cancelled
func sleepOrDone(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}
