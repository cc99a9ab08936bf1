// Package graphql walks a user's post timeline through Instagram's private
// GraphQL endpoint and resolves post links to timeline nodes.
//
// A walk stops on the first of: a response without the timeline container,
// no next page, an end cursor that did not advance, the page budget, or a
// failed request. Failures never surface as errors; the posts gathered so
// far are kept and the reason is reported in Result.
package graphql
