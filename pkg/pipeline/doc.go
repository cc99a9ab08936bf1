// Package pipeline runs one retrieval from a link to a manifest.
//
// A run moves through Init, SessionReady, MediaDiscovered, Downloading and
// Completed, and can drop to Failed from any of them:
//
//	o, err := pipeline.New(pipeline.Deps{Config: cfg, Logger: log})
//	if err != nil {
//		return err
//	}
//	res, err := o.Run(ctx, pipeline.Request{URL: link, Kind: extractor.KindPost})
//
// Discovery uses either a stealth browser (BrowserStrategy) or the web
// GraphQL timeline (GraphQLStrategy). Both share the download path: files
// land in <uploads>/<type>_<uuid>/media_<n>.<ext>, empty or failed
// downloads are dropped, and a run that keeps nothing removes its directory.
package pipeline
