// Package downloader fetches media URLs to disk, one at a time, with a
// bounded number of attempts and a randomized pause between them.
package downloader
