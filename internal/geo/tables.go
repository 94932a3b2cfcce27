package geo

import "github.com/easeaico/storefront-cs/internal/types"

// Route reasons.
const (
	ReasonBeijingAllDistrict   = "beijing_all_district"
	ReasonNorthFallback        = "north_fallback_beijing"
	ReasonShanghaiDistrict     = "shanghai_district"
	ReasonShanghaiNeedDistrict = "shanghai_need_district"
	ReasonJiangzhe             = "jiangzhe_to_sh_renmin"
	ReasonOutOfCoverage        = "out_of_coverage"
	ReasonUnknown              = "unknown"
)

// Route types.
const (
	RouteCoverage     = "coverage"
	RouteNeedDistrict = "need_district"
	RouteNonCoverage  = "non_coverage"
	RouteUnknown      = "unknown"
)

var beijingTokens = []string{
	"北京", "东城", "西城", "朝阳", "海淀", "丰台", "石景山", "门头沟", "房山",
	"通州", "顺义", "昌平", "大兴", "怀柔", "平谷", "密云", "延庆",
}

var northFallbackTokens = []string{
	"天津", "河北", "内蒙古", "内蒙",
	"石家庄", "保定", "廊坊", "唐山", "张家口", "承德", "秦皇岛", "沧州", "衡水", "邢台", "邯郸",
	"呼和浩特", "包头", "赤峰", "鄂尔多斯",
}

type districtAlias struct {
	token string
	store string
}

// shanghaiAliases is ordered longest alias first so that 静安寺 wins over 静安.
var shanghaiAliases = []districtAlias{
	{"人民广场", types.StoreRenmin},
	{"静安寺", types.StoreJingan},
	{"徐家汇", types.StoreXuhui},
	{"五角场", types.StoreWujiaochang},
	{"陆家嘴", types.StoreRenmin},
	{"静安", types.StoreJingan},
	{"普陀", types.StoreJingan},
	{"长宁", types.StoreJingan},
	{"嘉定", types.StoreJingan},
	{"徐汇", types.StoreXuhui},
	{"闵行", types.StoreXuhui},
	{"松江", types.StoreXuhui},
	{"青浦", types.StoreXuhui},
	{"奉贤", types.StoreXuhui},
	{"金山", types.StoreXuhui},
	{"杨浦", types.StoreWujiaochang},
	{"宝山", types.StoreWujiaochang},
	{"崇明", types.StoreWujiaochang},
	{"黄浦", types.StoreRenmin},
	{"黄埔", types.StoreRenmin},
	{"人广", types.StoreRenmin},
	{"浦东", types.StoreRenmin},
	{"虹口", types.StoreHongkou},
}

var jiangzheTokens = []string{
	"江苏", "浙江", "苏州", "无锡", "常州", "南京", "南通", "昆山", "嘉兴", "杭州",
	"宁波", "绍兴", "湖州", "太仓", "扬州", "镇江", "泰州", "温州", "金华", "台州",
}

var outOfCoverageTokens = []string{
	"黑龙江", "乌鲁木齐", "哈尔滨",
	"吉林", "辽宁", "山东", "山西", "河南", "湖北", "湖南", "广东", "广西", "海南",
	"四川", "重庆", "贵州", "云南", "西藏", "陕西", "甘肃", "青海", "宁夏", "新疆",
	"安徽", "福建", "江西", "台湾", "香港", "澳门", "东北",
	"广州", "深圳", "成都", "武汉", "西安", "长沙", "郑州", "济南", "青岛", "沈阳",
	"大连", "长春", "合肥", "福州", "厦门", "南昌", "昆明", "贵阳", "南宁", "海口",
	"兰州", "西宁", "银川", "拉萨", "太原",
}

var storeNames = map[string]string{
	types.StoreBeijing:     "北京朝阳门店",
	types.StoreJingan:      "上海静安门店",
	types.StoreXuhui:       "上海徐汇门店",
	types.StoreWujiaochang: "上海五角场门店",
	types.StoreRenmin:      "上海人广门店",
	types.StoreHongkou:     "上海虹口门店",
}

// StoreName returns the display name of a store code, or 门店 when unknown.
func StoreName(code string) string {
	if name, ok := storeNames[code]; ok {
		return name
	}
	return "门店"
}

// StoreCodes lists every known store code.
func StoreCodes() []string {
	return []string{
		types.StoreBeijing,
		types.StoreJingan,
		types.StoreXuhui,
		types.StoreWujiaochang,
		types.StoreRenmin,
		types.StoreHongkou,
	}
}
