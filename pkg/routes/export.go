package routes

import (
	"encoding/xml"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/paulmach/orb/geojson"

	"github.com/rubiojr/pathfinder/pkg/geo"
)

type gpxRoutePoint struct {
	Lat float64 `xml:"lat,attr"`
	Lon float64 `xml:"lon,attr"`
}

type gpxRoute struct {
	Name   string          `xml:"name"`
	Desc   string          `xml:"desc,omitempty"`
	Points []gpxRoutePoint `xml:"rtept"`
}

type gpxDoc struct {
	XMLName xml.Name   `xml:"gpx"`
	Version string     `xml:"version,attr"`
	Creator string     `xml:"creator,attr"`
	NS      string     `xml:"xmlns,attr"`
	Routes  []gpxRoute `xml:"rte"`
}

// WriteGPX writes the live routes as GPX 1.1 <rte> elements.
func (c *Collection) WriteGPX(w io.Writer) error {
	doc := gpxDoc{
		Version: "1.1",
		Creator: "pathfinder",
		NS:      "http://www.topografix.com/GPX/1/1",
	}
	for _, r := range c.Routes() {
		rte := gpxRoute{Name: r.name, Desc: r.description}
		for _, p := range r.waypoints {
			rte.Points = append(rte.Points, gpxRoutePoint{Lat: p.Lat, Lon: p.Lon})
		}
		doc.Routes = append(doc.Routes, rte)
	}
	if _, err := io.WriteString(w, xml.Header); err != nil {
		return err
	}
	enc := xml.NewEncoder(w)
	enc.Indent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("gpx encode: %w", err)
	}
	_, err := io.WriteString(w, "\n")
	return err
}

// SaveGPX writes the GPX export to path through a temp file and rename, so
// readers never see a partial file.
func (c *Collection) SaveGPX(path string) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if err := c.WriteGPX(tmp); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// FeatureCollection exports the live routes as GeoJSON LineStrings.
func (c *Collection) FeatureCollection() *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for _, r := range c.Routes() {
		f := geojson.NewFeature(geo.LineString(r.waypoints))
		f.ID = r.id
		f.Properties["name"] = r.name
		f.Properties["description"] = r.description
		f.Properties["color"] = r.color
		fc.Append(f)
	}
	return fc
}

// SaveGeoJSON writes FeatureCollection to path.
func (c *Collection) SaveGeoJSON(path string) error {
	b, err := c.FeatureCollection().MarshalJSON()
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
