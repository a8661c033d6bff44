// Package domain models the data products published by the Italian Civil
// Protection Department (DPC) radar platform and the records this service
// derives from them.
//
// # Data Source
//
// Products are served by the DPC "wide" REST API rooted at
// https://radar-api.protezionecivile.it/wide/product. Three endpoints matter:
//
//	GET  existsProduct?type=SRI&time=1751280900000   → true | false
//	GET  findLastProductByType?type=SRI              → {"lastProducts":[{"productType":"SRI","time":...}]}
//	POST downloadProduct {"productType":"SRI","productDate":"1751280900000"}
//
// Timestamps on the wire are Unix epoch milliseconds in UTC. The download
// response names its payload through the Content-Disposition header.
//
// # Payloads
//
// Gridded products (SRI, VMI, SRT*, TEMP, CAPPI*, ...) arrive as single-band
// GeoTIFFs where missing samples hold the sentinel -9999. Point and polygon
// products (LTG, AMV, HRD, RADAR_STATUS) arrive as a zip archive containing one
// ESRI shapefile named after the product time:
//
//	"<dd>-<mm>-<yyyy>-<HH>-<MM>.shp"  →  e.g. "30-06-2025-10-55.shp"
//
// # Cadence
//
// Every product is published on a fixed cadence expressed with pandas offset
// aliases: "5T" (every 5 minutes), "10T", "20T", "1H". A requested timestamp
// is floored to the preceding cadence boundary before the API is asked about
// it; see [Product.Floor].
//
// # Partitioning
//
// Stored payloads and catalog objects are laid out hive-style:
//
//	data/year=2025/month=6/day=30/product=SRI/SRI_30-06-2025-10-55.tif
//	catalog/year=2025/month=6/day=30/product=SRI/SRI.json
//
// Catalog objects are JSON lines, one [CatalogRecord] per stored artifact.
package domain
