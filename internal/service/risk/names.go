package risk

import "eventcam/internal/model"

// WarehouseNames is the class table of the warehouse safety models. Ids
// 0-27 are objects and zones, 28-55 are unsafe-act and unsafe-condition
// classes that trigger a recording on their own.
var WarehouseNames = model.ClassNames{
	0:  "person (workwear)",
	1:  "person (no workwear)",
	2:  "cargo truck",
	3:  "forklift",
	4:  "hand pallet truck",
	5:  "roll container",
	6:  "hand cart",
	7:  "smoking",
	8:  "storage rack",
	9:  "stacked cargo",
	10: "single cargo",
	11: "dock",
	12: "door",
	13: "cargo elevator",
	14: "power strip with breaker",
	15: "power strip",
	16: "personal heater",
	17: "fire extinguisher",
	18: "safety work zone",
	19: "welding zone",
	20: "forklift lane",
	21: "restricted zone",
	22: "fire escape route",
	23: "safety fence",
	24: "open flame tool",
	25: "spill (water, oil)",
	26: "combustibles",
	27: "sandwich panel",
	28: "forklift carrying with blocked view",
	29: "obstacle near rack loading",
	30: "floor stack of 3+ tiers",
	31: "unstable rack storage",
	32: "unstable cargo on carrier",
	33: "cargo collapse in transit",
	34: "person in forklift lane",
	35: "safety rule violation",
	36: "bad load or collapse in transit",
	37: "person in external work zone",
	38: "hand pallet truck stacked 2+ tiers",
	39: "combustibles in welding zone",
	40: "smoking in no-smoking zone",
	41: "person in cargo bay (inbound)",
	42: "person in cargo bay (outbound)",
	43: "forklift lane marking missing",
	44: "obstacle at dock door",
	45: "person behind reversing vehicle",
	46: "empty pallets left untidy",
	47: "leaning inside rack safety line",
	48: "twisted or damaged pallet",
	49: "person riding cargo elevator",
	50: "power strip without overload breaker",
	51: "fire extinguisher missing",
	52: "restricted area door open",
	53: "cargo in escape route",
	54: "unloading with dock detached",
	55: "forklift driving off lane",
}

const firstTriggerClass = 28

// MergeNames builds the class table of an adapter: names the adapter
// reports are replaced by override entries with the same id. When the
// adapter reports no names at all the override table is used as is.
// The result is a new map; neither input is modified.
func MergeNames(adapter, override model.ClassNames) model.ClassNames {
	merged := make(model.ClassNames, len(adapter))
	for id, name := range adapter {
		merged[id] = name
	}

	for id, name := range override {
		if _, ok := merged[id]; ok || len(adapter) == 0 {
			merged[id] = name
		}
	}
	return merged
}
