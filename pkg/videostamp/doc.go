// Package videostamp implements a media resolution and rendering
// pipeline: it takes an arbitrarily-shaped event payload, locates a
// playable video source in it (directly, by scraping an HTML landing
// page, or through a vendor asset lookup), downloads the video,
// composites a configured overlay onto it, re-encodes the result to a
// streaming-friendly MP4 and publishes it to a blob storage backend
// with a policy-selected URL.
//
// It exposes a single Service interface that orchestrates one job end
// to end. The moving parts are pluggable through functional options:
// source extraction (subpackage extract), page and vendor resolution
// (resolve), asset download and overlay caching (fetch), compositing
// and probing (ffmpeg), storage backends (storage/memory, storage/fs,
// storage/s3), URL selection (urlstrategy) and completion callbacks
// (callback). The api subpackage mounts the webhook transport and
// config wires everything from the environment.
package videostamp
