// Package geoclue reports the device position from GeoClue2 over the D-Bus
// system bus.
//
// GeoClue requires a DesktopId matching a .desktop file (basename) in the
// XDG data dirs that contains X-Geoclue-2-Client=true. Without it, calls fail
// with org.freedesktop.DBus.Error.AccessDenied or Start silently produces no
// locations. EnsureDesktopFile writes a minimal one.
package geoclue

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/godbus/dbus/v5"

	"github.com/rubiojr/pathfinder/pkg/geo"
	"github.com/rubiojr/pathfinder/pkg/logger"
)

const (
	geoService    = "org.freedesktop.GeoClue2"
	managerPath   = dbus.ObjectPath("/org/freedesktop/GeoClue2/Manager")
	managerIface  = "org.freedesktop.GeoClue2.Manager"
	clientIface   = "org.freedesktop.GeoClue2.Client"
	locationIface = "org.freedesktop.GeoClue2.Location"
	propsIface    = "org.freedesktop.DBus.Properties"

	accessDenied = "org.freedesktop.DBus.Error.AccessDenied"
)

// Fix is one position report.
type Fix struct {
	Point     geo.Point
	Accuracy  float64 // meters
	Altitude  float64
	Timestamp time.Time
}

// Source streams device positions. OnFix and OnDenied run on the Run
// goroutine; callers hand them over to their own loop.
type Source struct {
	DesktopID string
	OnFix     func(Fix)
	OnDenied  func(reason string)

	log *logger.Logger
}

func New(desktopID string, onFix func(Fix), onDenied func(string)) *Source {
	return &Source{
		DesktopID: desktopID,
		OnFix:     onFix,
		OnDenied:  onDenied,
		log:       logger.New("geoclue"),
	}
}

// Run keeps a GeoClue client alive until ctx is done, retrying with a
// growing delay when the bus or the service fails.
func (s *Source) Run(ctx context.Context) {
	const (
		maxInitialRetries = 5
		retryBaseDelay    = 2 * time.Second
		requestedAccuracy = uint32(5)  // exact
		distanceThreshold = uint32(25) // meters between updates
		timeThreshold     = uint32(5)  // seconds between updates
	)

	var attempt int
	denied := false
	for {
		if ctx.Err() != nil {
			return
		}
		err := func() error {
			cl, err := newClient(s.desktopID(), requestedAccuracy, distanceThreshold, timeThreshold)
			if err != nil {
				return err
			}
			defer cl.close()
			if err := cl.start(); err != nil {
				return err
			}
			cl.fetchInitial(s.emit)
			return cl.watch(ctx, s.emit)
		}()
		if err == nil {
			return
		}
		if !denied && isAccessDenied(err) {
			denied = true
			if s.OnDenied != nil {
				s.OnDenied("GeoClue denied access to the device location")
			}
		}
		attempt++
		delay := 30 * time.Second
		if attempt <= maxInitialRetries {
			delay = retryBaseDelay * time.Duration(attempt)
		}
		s.log.Error("retrying after error (%v), attempt=%d delay=%s", err, attempt, delay)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return
		}
	}
}

func (s *Source) desktopID() string {
	return strings.TrimSuffix(s.DesktopID, ".desktop")
}

func (s *Source) emit(f Fix) {
	s.log.Debug("fix %s ±%.0fm", f.Point, f.Accuracy)
	if s.OnFix != nil {
		s.OnFix(f)
	}
}

func isAccessDenied(err error) bool {
	var de dbus.Error
	if errors.As(err, &de) {
		return de.Name == accessDenied
	}
	var dep *dbus.Error
	if errors.As(err, &dep) {
		return dep.Name == accessDenied
	}
	return strings.Contains(err.Error(), "AccessDenied")
}

// EnsureDesktopFile writes a minimal desktop entry for desktopID into
// dataHome/applications unless one exists.
func EnsureDesktopFile(dataHome, desktopID string) error {
	appsDir := filepath.Join(dataHome, "applications")
	if err := os.MkdirAll(appsDir, 0o755); err != nil {
		return err
	}
	name := desktopID
	if !strings.HasSuffix(name, ".desktop") {
		name += ".desktop"
	}
	dest := filepath.Join(appsDir, name)
	if _, err := os.Stat(dest); err == nil {
		return nil
	}
	content := `[Desktop Entry]
Type=Application
Name=Pathfinder
Comment=Route planner (GeoClue client)
Exec=pathfinder serve
Terminal=false
Categories=Utility;Maps;
X-Geoclue-2-Client=true
X-Geoclue-2-Access-Fine=true
`
	return os.WriteFile(dest, []byte(content), 0o644)
}

type client struct {
	path dbus.ObjectPath
	bus  *dbus.Conn
}

func newClient(desktopID string, acc, dist, sec uint32) (*client, error) {
	bus, err := dbus.SystemBus()
	if err != nil {
		return nil, err
	}
	manager := bus.Object(geoService, managerPath)

	var clientPath dbus.ObjectPath
	if call := manager.Call(managerIface+".CreateClient", 0); call.Err != nil {
		return nil, call.Err
	} else if err := call.Store(&clientPath); err != nil {
		return nil, err
	}
	obj := bus.Object(geoService, clientPath)
	set := func(name string, val any) error {
		return obj.Call(propsIface+".Set", 0, clientIface, name, dbus.MakeVariant(val)).Err
	}
	if err := set("DesktopId", desktopID); err != nil {
		return nil, fmt.Errorf("set DesktopId: %w", err)
	}
	if err := set("RequestedAccuracyLevel", acc); err != nil {
		return nil, fmt.Errorf("set accuracy: %w", err)
	}
	_ = set("DistanceThreshold", dist)
	_ = set("TimeThreshold", sec)
	return &client{path: clientPath, bus: bus}, nil
}

func (c *client) start() error {
	return c.bus.Object(geoService, c.path).Call(clientIface+".Start", 0).Err
}

func (c *client) close() {
	_ = c.bus.Object(geoService, c.path).Call(clientIface+".Stop", 0)
	c.bus.Close()
}

func (c *client) fetchInitial(emit func(Fix)) {
	var v dbus.Variant
	call := c.bus.Object(geoService, c.path).Call(propsIface+".Get", 0, clientIface, "Location")
	if call.Err != nil || call.Store(&v) != nil {
		return
	}
	if lp, ok := v.Value().(dbus.ObjectPath); ok && lp != "" && lp != "/" {
		c.read(lp, emit)
	}
}

func (c *client) watch(ctx context.Context, emit func(Fix)) error {
	rule := fmt.Sprintf("type='signal',interface='%s',path='%s'", propsIface, c.path)
	if call := c.bus.BusObject().Call("org.freedesktop.DBus.AddMatch", 0, rule); call.Err != nil {
		return call.Err
	}
	sigCh := make(chan *dbus.Signal, 10)
	c.bus.Signal(sigCh)

	for {
		select {
		case <-ctx.Done():
			return nil
		case sig := <-sigCh:
			if sig == nil {
				return errors.New("dbus signal channel closed")
			}
			if lp, ok := changedLocation(sig, c.path); ok {
				c.read(lp, emit)
			}
		}
	}
}

// changedLocation extracts the new Location object path from a
// PropertiesChanged signal of the client.
func changedLocation(sig *dbus.Signal, client dbus.ObjectPath) (dbus.ObjectPath, bool) {
	if sig.Name != propsIface+".PropertiesChanged" || sig.Path != client || len(sig.Body) < 2 {
		return "", false
	}
	changed, ok := sig.Body[1].(map[string]dbus.Variant)
	if !ok {
		return "", false
	}
	v, ok := changed["Location"]
	if !ok {
		return "", false
	}
	lp, ok := v.Value().(dbus.ObjectPath)
	return lp, ok && lp != "" && lp != "/"
}

func (c *client) read(lp dbus.ObjectPath, emit func(Fix)) {
	var props map[string]dbus.Variant
	call := c.bus.Object(geoService, lp).Call(propsIface+".GetAll", 0, locationIface)
	if call.Err != nil || call.Store(&props) != nil {
		return
	}
	if f, ok := fixFromProps(props, time.Now().UTC()); ok {
		emit(f)
	}
}

// fixFromProps decodes the properties of a GeoClue Location object. A 0,0
// position is treated as no fix.
func fixFromProps(props map[string]dbus.Variant, now time.Time) (Fix, bool) {
	f64 := func(key string) float64 {
		if v, ok := props[key]; ok {
			if f, ok := v.Value().(float64); ok {
				return f
			}
		}
		return 0
	}
	p := geo.Pt(f64("Latitude"), f64("Longitude"))
	if (p.Lat == 0 && p.Lon == 0) || !p.Valid() {
		return Fix{}, false
	}
	return Fix{Point: p, Accuracy: f64("Accuracy"), Altitude: f64("Altitude"), Timestamp: now}, true
}
