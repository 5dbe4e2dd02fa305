// Package seed loads a small demo catalogue by replaying its histories
// through the tracker, so every event is validated and settled like any
// other.
package seed

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/erazemk/sledilnik/internal/model"
	"github.com/erazemk/sledilnik/internal/store"
	"github.com/erazemk/sledilnik/internal/tracking"
)

// Demo actors.
var (
	Manufacturer = model.Actor{Address: "ST1PQNWVZ0T5GP5Z1D389ZKECZWC1P3HKY5DG5BW", Role: model.RoleManufacturer}
	Shipper      = model.Actor{Address: "ST2MQNWVZ0T5GP5Z1D389ZKECZWC1P3HKY5DG5BW", Role: model.RoleShipper}
	Retailer     = model.Actor{Address: "ST3MQNWVZ0T5GP5Z1D389ZKECZWC1P3HKY5DG5BW", Role: model.RoleRetailer}
)

type step struct {
	actor    model.Actor
	status   model.Status
	location *model.Location
	notes    string
}

type demoItem struct {
	item  tracking.NewItem
	steps []step
}

func at(lat, lng float64, name string) *model.Location {
	return &model.Location{Latitude: lat, Longitude: lng, Name: name}
}

var catalogue = []demoItem{
	{
		item: tracking.NewItem{
			ID:          "item-001",
			Name:        "Premium Coffee Beans",
			Description: "100% Arabica coffee beans from Colombia",
			Metadata:    map[string]string{"origin": "Colombia", "batchNumber": "CB-2023-01-15-001", "weight": "1kg"},
		},
		steps: []step{
			{Manufacturer, model.StatusManufactured, at(4.7110, -74.0721, "Coffee Farm, Colombia"), ""},
			{Manufacturer, model.StatusPackaged, at(4.7110, -74.0721, "Packaging Facility, Colombia"), ""},
			{Shipper, model.StatusInTransit, at(25.7617, -80.1918, "Port of Miami, USA"), "Shipment arrived at port"},
			{Shipper, model.StatusDelivered, at(34.0522, -118.2437, "Los Angeles Distribution Center"), ""},
			{Retailer, model.StatusReceivedByRetailer, at(34.0522, -118.2437, "Gourmet Coffee Shop, Los Angeles"), ""},
			{Retailer, model.StatusForSale, at(34.0522, -118.2437, "Gourmet Coffee Shop, Los Angeles"), ""},
		},
	},
	{
		item: tracking.NewItem{
			ID:          "item-002",
			Name:        "Organic Cotton T-Shirt",
			Description: "100% organic cotton, sustainably sourced",
			Metadata:    map[string]string{"material": "Organic Cotton", "size": "Medium", "color": "Natural White", "batchNumber": "OC-2023-02-10-005"},
		},
		steps: []step{
			{Manufacturer, model.StatusManufactured, at(23.8103, 90.4125, "Textile Factory, Bangladesh"), ""},
			{Manufacturer, model.StatusPackaged, at(23.8103, 90.4125, "Packaging Facility, Bangladesh"), ""},
			{Shipper, model.StatusInTransit, at(22.3569, 91.7832, "Port of Chittagong, Bangladesh"), ""},
			{Shipper, model.StatusDelivered, at(51.5074, -0.1278, "London Distribution Center, UK"), ""},
			{Retailer, model.StatusReceivedByRetailer, at(51.5142, -0.1390, "Sustainable Fashion Store, London"), ""},
			{Retailer, model.StatusForSale, at(51.5142, -0.1390, "Sustainable Fashion Store, London"), ""},
			{Retailer, model.StatusSold, at(51.5142, -0.1390, "Sustainable Fashion Store, London"), ""},
		},
	},
	{
		item: tracking.NewItem{
			ID:          "item-003",
			Name:        "Organic Avocados",
			Description: "Fresh organic avocados from Mexico",
			Metadata:    map[string]string{"origin": "Mexico", "variety": "Hass", "farmId": "ORG-FARM-123", "batchNumber": "AV-2023-04-05-002"},
		},
		steps: []step{
			{Manufacturer, model.StatusManufactured, at(19.4326, -99.1332, "Organic Farm, Mexico"), "Harvested at peak ripeness"},
			{Manufacturer, model.StatusPackaged, at(19.4326, -99.1332, "Packaging Facility, Mexico"), ""},
			{Shipper, model.StatusShippingStarted, at(19.4326, -99.1332, "Distribution Center, Mexico City"), ""},
			{Shipper, model.StatusInTransit, at(25.7617, -80.1918, "International Shipping Route"), "Temperature-controlled container"},
		},
	},
}

// Load replays the demo catalogue and returns how many items it added. An
// item that already exists is resumed from its current status, so a run
// that stopped partway is completed by the next one and a finished
// catalogue is left alone.
func Load(ctx context.Context, database *sql.DB, tr *tracking.Tracker) (int, error) {
	added := 0
	for _, d := range catalogue {
		current := model.InitialStatus
		_, err := tr.RegisterItem(ctx, Manufacturer, d.item)
		switch {
		case errors.Is(err, tracking.ErrItemExists):
			item, err := tr.Item(ctx, d.item.ID)
			if err != nil {
				return added, fmt.Errorf("loading %s: %w", d.item.ID, err)
			}
			current = item.CurrentStatus
		case err != nil:
			return added, fmt.Errorf("registering %s: %w", d.item.ID, err)
		default:
			added++
		}

		replayed := 0
		for _, s := range d.steps {
			if s.status.OrderIndex() <= current.OrderIndex() {
				continue
			}
			_, err := tr.UpdateStatus(ctx, d.item.ID, s.actor, tracking.Update{
				Status:   s.status,
				Location: s.location,
				Notes:    s.notes,
			})
			if err != nil {
				return added, fmt.Errorf("replaying %s to %s: %w", d.item.ID, s.status, err)
			}
			replayed++
		}
		if current != model.InitialStatus && replayed > 0 {
			slog.Info("demo item resumed", "item", d.item.ID, "from", current, "steps", replayed)
		}
	}

	if _, err := store.MarkSeeded(ctx, database, time.Now()); err != nil {
		return added, err
	}
	slog.Info("demo catalogue loaded", "added", added, "total", len(catalogue))
	return added, nil
}
