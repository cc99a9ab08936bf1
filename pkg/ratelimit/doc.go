// Package ratelimit spaces out requests to Instagram.
//
// Interval wraps golang.org/x/time/rate with a burst of one, so the first
// request goes out immediately and every later one waits until the period has
// passed. The GraphQL paginator uses it for the pause between timeline pages.
package ratelimit
